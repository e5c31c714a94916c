package comrelay

import (
	"errors"
	"io"
)

// stdinReader moves bytes from the host input stream into the outbound
// buffer, sleeping on the buffer's space signal while it is full. End
// of the input stream sets stdinDone; a stream error also records the
// error for the exit code. Runs on its own goroutine because the host
// stream offers only blocking reads.
func (r *Relay) stdinReader() {
	for {
		toRead := r.tx.AvailableSpace()
		if toRead <= 0 {
			<-r.tx.NotFull().Ready()
			continue
		}
		region := r.tx.SpaceRegion()
		n, err := r.in.Read(region)
		if n > 0 {
			r.log.Debug().Int("count", n).Str("data", preview(region[:n])).Msg("stdin read")
			r.tx.CommitWrite(n)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Info().Err(err).Msg("stdin read failed")
				r.setWorkerErr(err)
			} else {
				r.log.Debug().Msg("stdin closed")
			}
			r.stdinDone.Store(true)
			return
		}
		if n == 0 {
			// A successful zero-byte read also means the stream closed.
			r.log.Debug().Msg("stdin closed")
			r.stdinDone.Store(true)
			return
		}
	}
}

// stdoutWriter drains the inbound buffer to the host output stream,
// sleeping on the buffer's data signal while it is empty. It never
// exits on a short or zero-byte write; only a stream error stops it,
// setting stdoutDone and recording the error for the exit code.
func (r *Relay) stdoutWriter() {
	for {
		toWrite := r.rx.AvailableData()
		if toWrite <= 0 {
			<-r.rx.NotEmpty().Ready()
			continue
		}
		region := r.rx.DataRegion()
		n, err := r.out.Write(region)
		if n > 0 {
			r.log.Debug().Int("count", n).Str("data", preview(region[:n])).Msg("stdout wrote")
			r.rx.CommitRead(n)
		}
		if err != nil {
			r.log.Info().Err(err).Msg("stdout write failed")
			r.setWorkerErr(err)
			r.stdoutDone.Store(true)
			return
		}
	}
}
