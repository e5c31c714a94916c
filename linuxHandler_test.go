//go:build linux

package comrelay

import (
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// ptySettings disables CTS flow control: a pty has no modem lines.
func ptySettings() Settings {
	s := DefaultSettings()
	s.CTSFlow = false
	return s
}

func TestDeviceReadWrite(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	dev, err := OpenDevice(slave.Name(), ptySettings(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	// Master -> device.
	_, err = master.Write([]byte("hello"))
	require.NoError(t, err)

	mask, err := dev.WaitEvent()
	require.NoError(t, err)
	require.NotZero(t, mask&EventRxChar)

	got := make([]byte, 0, 5)
	buf := make([]byte, 16)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 5 {
		require.True(t, time.Now().Before(deadline), "timeout reading from device")
		n, err := dev.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, []byte("hello"), got)

	// Device -> master.
	n, err := dev.Write([]byte("world"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	fromDev := make(chan []byte, 1)
	errs := make(chan error, 1)
	go func() {
		b := make([]byte, 16)
		n, err := master.Read(b)
		if err != nil {
			errs <- err
			return
		}
		fromDev <- b[:n]
	}()
	select {
	case b := <-fromDev:
		require.Equal(t, []byte("world"), b)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for master to receive")
	}
}

func TestDeviceZeroLengthWrite(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	dev, err := OpenDevice(slave.Name(), ptySettings(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })

	n, err := dev.Write(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestDeviceCloseUnblocksWaitEvent(t *testing.T) {
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })

	dev, err := OpenDevice(slave.Name(), ptySettings(), zerolog.Nop())
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := dev.WaitEvent()
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, dev.Close())

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrDeviceClosed)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for WaitEvent to unblock")
	}
}

func TestDeviceCloseDuringEventStream(t *testing.T) {
	// With unread input the event wait keeps reporting and sleeping in
	// its throttle, so Close can land at any point of that cycle. It
	// must unblock the waiter regardless.
	for _, delay := range []time.Duration{
		0,
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
	} {
		master, slave, err := pty.Open()
		require.NoError(t, err)

		dev, err := OpenDevice(slave.Name(), ptySettings(), zerolog.Nop())
		require.NoError(t, err)

		_, err = master.Write([]byte("x"))
		require.NoError(t, err)
		mask, err := dev.WaitEvent()
		require.NoError(t, err)
		require.NotZero(t, mask&EventRxChar)

		errs := make(chan error, 1)
		go func() {
			for {
				if _, err := dev.WaitEvent(); err != nil {
					errs <- err
					return
				}
			}
		}()

		time.Sleep(delay)
		require.NoError(t, dev.Close())

		select {
		case err := <-errs:
			require.ErrorIs(t, err, ErrDeviceClosed)
		case <-time.After(2 * time.Second):
			t.Fatalf("WaitEvent still blocked after Close (delay %v)", delay)
		}
		master.Close()
		slave.Close()
	}
}

func TestOpenDeviceRejectsMissingPort(t *testing.T) {
	_, err := OpenDevice("/dev/does-not-exist", ptySettings(), zerolog.Nop())
	require.Error(t, err)
}
