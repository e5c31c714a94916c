package comrelay

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Exit codes of the relay. Reader and writer stream errors propagate
// their OS error number instead.
const (
	ExitOK             = 0
	ExitUsage          = 1
	ExitLogFile        = 2
	ExitOpenFailed     = 3
	ExitWaitFailed     = 4
	ExitWaitUnexpected = 5
	ExitTransport      = 6
)

const (
	defaultBufferSize   = 128
	defaultWaitInterval = 2 * time.Second
)

// Options tune a Relay. The zero value selects the defaults.
type Options struct {
	// BufferSize is the per-direction ring buffer capacity in bytes.
	BufferSize int
	// WaitInterval bounds each event-loop wait and paces the periodic
	// retry backstop.
	WaitInterval time.Duration
}

// Relay bridges a host input/output stream pair to a serial Device:
// host input -> outbound buffer -> device write, and device read ->
// inbound buffer -> host output. It runs until one side closes or the
// device fails, flushing already-buffered bytes before it returns.
type Relay struct {
	in  io.Reader
	out io.Writer
	dev Device

	rx        *RingBuffer // device -> host output
	tx        *RingBuffer // host input -> device
	transport *SerialTransport

	stdinDone  atomic.Bool
	stdoutDone atomic.Bool

	workerMu  sync.Mutex
	workerErr error

	waitInterval time.Duration
	log          zerolog.Logger
}

func NewRelay(dev Device, in io.Reader, out io.Writer, log zerolog.Logger, opt Options) *Relay {
	size := opt.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	wait := opt.WaitInterval
	if wait <= 0 {
		wait = defaultWaitInterval
	}
	rx := NewRingBuffer("rx", size, log)
	tx := NewRingBuffer("tx", size, log)
	return &Relay{
		in:           in,
		out:          out,
		dev:          dev,
		rx:           rx,
		tx:           tx,
		transport:    NewSerialTransport(dev, rx, tx, log),
		waitInterval: wait,
		log:          log,
	}
}

func (r *Relay) setWorkerErr(err error) {
	r.workerMu.Lock()
	if r.workerErr == nil {
		r.workerErr = err
	}
	r.workerMu.Unlock()
}

func (r *Relay) takeWorkerErr() error {
	r.workerMu.Lock()
	defer r.workerMu.Unlock()
	return r.workerErr
}

// errnoCode reduces a host stream error to its OS error number.
func errnoCode(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return int(syscall.EIO)
}

// Run starts the worker tasks and the event loop, and returns the exit
// code once the relay has terminated. Precedence: a worker stream
// error, then a transport failure, then a wait failure, then success.
//
// Workers still blocked in a host stream call when the relay stops are
// left behind; there is no portable way to cancel them, and process
// teardown ends them (see the package documentation).
func (r *Relay) Run() int {
	go r.stdinReader()
	go r.stdoutWriter()

	exitCode := r.eventLoop()
	if exitCode == ExitOK && r.transport.Done() {
		exitCode = ExitTransport
	}
	if err := r.takeWorkerErr(); err != nil {
		exitCode = errnoCode(err)
	}
	r.log.Info().
		Int("code", exitCode).
		Bool("serialDone", r.transport.Done()).
		Bool("stdinDone", r.stdinDone.Load()).
		Bool("stdoutDone", r.stdoutDone.Load()).
		Int("txData", r.tx.Len()).
		Int("rxData", r.rx.Len()).
		Msg("exit")
	return exitCode
}

// eventLoop is the control goroutine: it alone drives the transport's
// advance functions. It waits on the five readiness conditions plus a
// bounded timer and dispatches to the matching advance call.
func (r *Relay) eventLoop() int {
	t := r.transport
	t.AdvanceEventWait()

	timer := time.NewTimer(r.waitInterval)
	defer timer.Stop()
	for {
		// Stop once the host side has drained the inbound buffer and
		// the transport is finished with the outbound one. Buffered
		// bytes are flushed before exit; a transport failure does not
		// strand them.
		if (r.stdoutDone.Load() || r.rx.Len() == 0) &&
			(t.Done() || (r.stdinDone.Load() && r.tx.Len() == 0)) {
			return ExitOK
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.waitInterval)

		select {
		case <-t.EventReady():
			t.AdvanceEventWait()
		case <-t.ReadReady():
			t.AdvanceRead()
		case <-t.WriteReady():
			t.AdvanceWrite()
		case <-r.rx.NotFull().Ready():
			if t.ReadPending() {
				// False positive: the outstanding read re-checks
				// space when it completes.
				r.rx.NotFull().Clear()
			} else {
				t.AdvanceRead()
			}
		case <-r.tx.NotEmpty().Ready():
			if t.WritePending() {
				r.tx.NotEmpty().Clear()
			} else {
				t.AdvanceWrite()
			}
		case <-timer.C:
			// A read or write may keep completing with zero bytes and
			// the device does not always deliver the event that says
			// when to retry. Retry periodically as a backstop.
			r.log.Trace().Msg("wait timeout")
			if !t.ReadPending() && r.rx.AvailableSpace() > 0 {
				r.log.Trace().Msg("serial read retry")
				t.AdvanceRead()
			}
			if !t.WritePending() && r.tx.AvailableData() > 0 {
				r.log.Trace().Msg("serial write retry")
				t.AdvanceWrite()
			}
		}
	}
}
