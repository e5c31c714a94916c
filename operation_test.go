package comrelay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalStates(t *testing.T) {
	s := NewSignal(false)
	require.False(t, s.IsSet())
	select {
	case <-s.Ready():
		t.Fatal("clear signal must not be ready")
	default:
	}

	s.Set()
	require.True(t, s.IsSet())
	select {
	case <-s.Ready():
	default:
		t.Fatal("set signal must be ready")
	}
	s.Set() // no-op

	s.Clear()
	require.False(t, s.IsSet())
	select {
	case <-s.Ready():
		t.Fatal("cleared signal must not be ready")
	default:
	}
}

func TestSignalWakesWaiter(t *testing.T) {
	s := NewSignal(false)
	woke := make(chan struct{})
	go func() {
		<-s.Ready()
		close(woke)
	}()
	s.Set()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
	}
}

func waitReady(t *testing.T, o *pendingOp) {
	t.Helper()
	select {
	case <-o.ready.Ready():
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for operation")
	}
}

func TestPendingOpCompletes(t *testing.T) {
	o := newPendingOp("test")
	require.Equal(t, opIdle, o.state)

	release := make(chan struct{})
	o.start(func() (int, error) {
		<-release
		return 7, nil
	})
	require.Equal(t, opPending, o.state)
	require.False(t, o.poll())

	close(release)
	waitReady(t, o)
	require.True(t, o.poll())
	require.Equal(t, opCompleted, o.state)

	n, _, err := o.result()
	require.NoError(t, err)
	require.Equal(t, 7, n)

	o.reset()
	require.Equal(t, opIdle, o.state)
	require.False(t, o.ready.IsSet())
}

func TestPendingOpFails(t *testing.T) {
	o := newPendingOp("test")
	boom := errors.New("boom")
	o.start(func() (int, error) { return 0, boom })

	waitReady(t, o)
	require.True(t, o.poll())
	require.Equal(t, opFailed, o.state)
	_, _, err := o.result()
	require.ErrorIs(t, err, boom)
}

func TestPendingOpEvent(t *testing.T) {
	o := newPendingOp("test")
	o.startEvent(func() (EventMask, error) { return EventRxChar | EventCTS, nil })

	waitReady(t, o)
	require.True(t, o.poll())
	_, mask, err := o.result()
	require.NoError(t, err)
	require.Equal(t, EventRxChar|EventCTS, mask)
}

func TestEventMaskString(t *testing.T) {
	require.Equal(t, "none", EventMask(0).String())
	require.Equal(t, "RXCHAR", EventRxChar.String())
	require.Equal(t, "RXCHAR TXEMPTY", (EventRxChar | EventTxEmpty).String())
}
