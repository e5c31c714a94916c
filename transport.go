package comrelay

import "github.com/rs/zerolog"

// SerialTransport drives the asynchronous device operations and moves
// bytes between the device and the two ring buffers. One operation per
// direction (read, write, event wait) may be outstanding at a time.
//
// All methods must be called from the control goroutine only; the
// worker tasks touch the buffers, never the transport. The Advance
// functions are idempotent: calling one while its operation is pending
// polls for completion and never issues a second operation, so the
// event path and the timer backstop can both trigger them safely.
type SerialTransport struct {
	dev Device
	rx  *RingBuffer // device -> host output
	tx  *RingBuffer // host input -> device

	readOp  *pendingOp
	writeOp *pendingOp
	eventOp *pendingOp

	// Regions handed to the outstanding operations, kept for the
	// trace preview when they complete.
	readRegion  []byte
	writeRegion []byte

	events EventMask // last observed event mask
	done   bool      // set on any fatal device error, never cleared
	log    zerolog.Logger
}

func NewSerialTransport(dev Device, rx, tx *RingBuffer, log zerolog.Logger) *SerialTransport {
	return &SerialTransport{
		dev:     dev,
		rx:      rx,
		tx:      tx,
		readOp:  newPendingOp("serial read"),
		writeOp: newPendingOp("serial write"),
		eventOp: newPendingOp("serial event wait"),
		log:     log,
	}
}

// Done reports whether a fatal device error stopped the transport.
// Buffered bytes keep draining to the host side after that.
func (t *SerialTransport) Done() bool { return t.done }

// LastEvents returns the most recently observed event mask.
func (t *SerialTransport) LastEvents() EventMask { return t.events }

func (t *SerialTransport) ReadPending() bool  { return t.readOp.state == opPending }
func (t *SerialTransport) WritePending() bool { return t.writeOp.state == opPending }

// EventReady is ready when an event wait completed.
func (t *SerialTransport) EventReady() <-chan struct{} { return t.eventOp.ready.Ready() }

// ReadReady is ready when a previously pending read completed.
func (t *SerialTransport) ReadReady() <-chan struct{} { return t.readOp.ready.Ready() }

// WriteReady is ready when a previously pending write completed.
func (t *SerialTransport) WriteReady() <-chan struct{} { return t.writeOp.ready.Ready() }

func (t *SerialTransport) fail(op *pendingOp, err error) {
	t.log.Info().Str("op", op.name).Err(err).Msg("serial failure")
	t.done = true
}

// AdvanceEventWait keeps an event wait outstanding and dispatches the
// reported conditions: RxChar continues the read path, TxEmpty the
// write path.
func (t *SerialTransport) AdvanceEventWait() {
	for {
		if t.done {
			// A completion that lands after the failure must still be
			// consumed, or its level-triggered signal would spin the
			// control loop.
			t.eventOp.ready.Clear()
			return
		}
		switch t.eventOp.state {
		case opIdle:
			t.eventOp.startEvent(t.dev.WaitEvent)
			continue
		case opPending:
			if !t.eventOp.poll() {
				return
			}
		}
		_, mask, err := t.eventOp.result()
		if err != nil {
			t.fail(t.eventOp, err)
			return
		}
		t.eventOp.reset()
		t.events = mask
		t.log.Trace().Stringer("events", mask).Msg("serial event")
		if mask&EventRxChar != 0 {
			t.AdvanceRead()
		}
		if mask&EventTxEmpty != 0 {
			t.AdvanceWrite()
		}
	}
}

// AdvanceRead continues moving bytes from the device into the inbound
// buffer. A zero-byte completion means the input queue is empty right
// now, not end-of-stream: the next RxChar event (or the loop's timer
// backstop) tries again. Reissuing immediately would spin, because the
// device read completes instantly on an empty queue.
func (t *SerialTransport) AdvanceRead() {
	// While this function is in charge, inbound space signals are
	// noise; CommitRead re-arms the signal when the host writer drains.
	t.rx.NotFull().Clear()
	for {
		if t.done {
			t.readOp.ready.Clear()
			return
		}
		switch t.readOp.state {
		case opIdle:
			toRead := t.rx.AvailableSpace()
			if toRead <= 0 {
				return
			}
			region := t.rx.SpaceRegion()
			t.readRegion = region
			t.readOp.start(func() (int, error) { return t.dev.Read(region) })
			continue
		case opPending:
			if !t.readOp.poll() {
				return
			}
		}
		n, _, err := t.readOp.result()
		if err != nil {
			t.fail(t.readOp, err)
			return
		}
		t.readOp.reset()
		t.log.Debug().Int("count", n).Str("data", preview(t.readRegion[:n])).Msg("serial read")
		if n <= 0 {
			return
		}
		t.rx.CommitWrite(n)
	}
}

// AdvanceWrite continues moving bytes from the outbound buffer to the
// device. A zero-byte completion means nothing was accepted, try later.
func (t *SerialTransport) AdvanceWrite() {
	t.tx.NotEmpty().Clear()
	for {
		if t.done {
			t.writeOp.ready.Clear()
			return
		}
		switch t.writeOp.state {
		case opIdle:
			toWrite := t.tx.AvailableData()
			if toWrite <= 0 {
				return
			}
			region := t.tx.DataRegion()
			t.writeRegion = region
			t.writeOp.start(func() (int, error) { return t.dev.Write(region) })
			continue
		case opPending:
			if !t.writeOp.poll() {
				return
			}
		}
		n, _, err := t.writeOp.result()
		if err != nil {
			t.fail(t.writeOp, err)
			return
		}
		t.writeOp.reset()
		t.log.Debug().Int("count", n).Str("data", preview(t.writeRegion[:n])).Msg("serial write")
		if n <= 0 {
			return
		}
		t.tx.CommitRead(n)
	}
}
