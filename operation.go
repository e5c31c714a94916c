package comrelay

import "sync"

type opState int

const (
	opIdle opState = iota
	opPending
	opCompleted
	opFailed
)

func (s opState) String() string {
	switch s {
	case opIdle:
		return "idle"
	case opPending:
		return "pending"
	case opCompleted:
		return "completed"
	case opFailed:
		return "failed"
	}
	return "unknown"
}

// pendingOp tracks one asynchronous device operation for one direction.
// The control goroutine is the only caller of start, poll and reset;
// the device call itself runs on a short-lived goroutine that reports
// through the ready signal. At most one call may be outstanding: start
// must only be called in the idle state.
type pendingOp struct {
	name  string
	state opState
	ready *Signal

	mu   sync.Mutex // guards the result fields against the completer
	n    int
	mask EventMask
	err  error
}

func newPendingOp(name string) *pendingOp {
	return &pendingOp{name: name, ready: NewSignal(false)}
}

// start issues an I/O operation whose result is a byte count.
func (o *pendingOp) start(fn func() (int, error)) {
	o.state = opPending
	go func() {
		n, err := fn()
		o.mu.Lock()
		o.n, o.mask, o.err = n, 0, err
		o.mu.Unlock()
		o.ready.Set()
	}()
}

// startEvent issues an event-wait operation whose result is a bitmask.
func (o *pendingOp) startEvent(fn func() (EventMask, error)) {
	o.state = opPending
	go func() {
		mask, err := fn()
		o.mu.Lock()
		o.n, o.mask, o.err = 0, mask, err
		o.mu.Unlock()
		o.ready.Set()
	}()
}

// poll moves a pending operation to completed or failed once the device
// goroutine has reported, consuming the ready signal. It returns false
// while the operation is still outstanding.
func (o *pendingOp) poll() bool {
	if o.state != opPending {
		return true
	}
	if !o.ready.IsSet() {
		return false
	}
	o.ready.Clear()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		o.state = opFailed
	} else {
		o.state = opCompleted
	}
	return true
}

// result returns the harvested outcome. Valid after poll returned true.
func (o *pendingOp) result() (int, EventMask, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n, o.mask, o.err
}

// reset returns a consumed operation to idle.
func (o *pendingOp) reset() {
	o.state = opIdle
}
