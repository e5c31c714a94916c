//go:build linux || darwin

package comrelay

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gurux/gxcommon-go"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// toUnixBaudrate maps a baud rate to the corresponding constant in the unix package.
var toUnixBaudrate = map[int]uint32{
	0:      unix.B0,
	50:     unix.B50,
	75:     unix.B75,
	110:    unix.B110,
	134:    unix.B134,
	150:    unix.B150,
	200:    unix.B200,
	300:    unix.B300,
	600:    unix.B600,
	1200:   unix.B1200,
	1800:   unix.B1800,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

const (
	// Minimum delay between consecutive event reports. A termios fd is
	// level-triggered, unlike a comm event which fires per state
	// change, so a full inbound buffer would otherwise complete the
	// event wait in a hot loop.
	eventThrottle = 20 * time.Millisecond
	// Poll timeout in milliseconds; bounds how late a TXEMPTY report
	// can be.
	eventPollTimeout = 100
)

type device struct {
	f  *os.File
	fd int
	// Self-pipe: Close hangs up the write end so a blocked WaitEvent
	// sees the read end go readable.
	pipeR, pipeW *os.File
	// Held for the whole of each WaitEvent call so Close can tell when
	// no poll is looking at the pipe's read end anymore.
	waitMu    sync.Mutex
	closeOnce sync.Once
	log       zerolog.Logger

	// Event synthesis state, touched only by WaitEvent.
	reported bool
	lastOutq int
}

// OpenDevice opens the named serial port and applies the line
// configuration. The returned device performs blocking reads (VMIN=1)
// and synthesizes comm events from poll readiness and the output
// queue length.
func OpenDevice(name string, cfg Settings, log zerolog.Logger) (Device, error) {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	d := &device{f: os.NewFile(uintptr(fd), name), fd: fd, log: log}

	t, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("tcgetattr failed: %w", err)
	}
	t.Cflag |= unix.CLOCAL | unix.CREAD
	t.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHONL | unix.ISIG | unix.IEXTEN
	t.Oflag &^= unix.OPOST | unix.ONLCR | unix.OCRNL
	t.Iflag &^= unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IGNBRK

	speed, ok := toUnixBaudrate[int(cfg.BaudRate)]
	if !ok {
		_ = d.Close()
		return nil, fmt.Errorf("unsupported baud rate: %d", cfg.BaudRate)
	}
	setTermiosSpeed(t, speed)

	t.Cflag &^= unix.CSIZE
	switch cfg.DataBits {
	case 5:
		t.Cflag |= unix.CS5
	case 6:
		t.Cflag |= unix.CS6
	case 7:
		t.Cflag |= unix.CS7
	case 8:
		t.Cflag |= unix.CS8
	default:
		_ = d.Close()
		return nil, errors.New("invalid databits (must be 5..8)")
	}

	switch cfg.StopBits {
	case gxcommon.StopBitsOne:
		t.Cflag &^= unix.CSTOPB
	case gxcommon.StopBitsTwo:
		t.Cflag |= unix.CSTOPB
	default:
		_ = d.Close()
		return nil, errors.New("invalid stopbits")
	}

	t.Iflag &^= unix.INPCK | unix.ISTRIP
	t.Cflag &^= unix.PARENB | unix.PARODD
	switch cfg.Parity {
	case gxcommon.ParityNone:
		// No parity: parity bit off, no parity checking
	case gxcommon.ParityEven:
		t.Cflag |= unix.PARENB
	case gxcommon.ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	default:
		_ = d.Close()
		return nil, errors.New("invalid parity")
	}

	t.Iflag &^= unix.IXON | unix.IXOFF
	if cfg.CTSFlow {
		t.Cflag |= unix.CRTSCTS
	} else {
		t.Cflag &^= unix.CRTSCTS
	}
	// One byte at a time, no interbyte timeout: the read blocks until
	// data arrives and must not return spuriously.
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, t); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("tcsetattr failed: %w", err)
	}
	if err := flushInput(fd); err != nil {
		d.log.Info().Err(err).Msg("input flush failed")
	}
	// The descriptor stays non-blocking: os.File parks readers in the
	// runtime poller, which lets Close unblock a pending Read.

	// Some adapters (and ptys) reject the modem line ioctls; that is
	// not fatal.
	if cfg.AssertDTR {
		if err := d.setModemBit(unix.TIOCM_DTR, true); err != nil {
			d.log.Info().Err(err).Msg("cannot assert DTR")
		}
	}
	if cfg.AssertRTS {
		if err := d.setModemBit(unix.TIOCM_RTS, true); err != nil {
			d.log.Info().Err(err).Msg("cannot assert RTS")
		}
	}

	d.pipeR, d.pipeW, err = os.Pipe()
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *device) setModemBit(bit int, on bool) error {
	req := unix.TIOCMBIC
	if on {
		req = unix.TIOCMBIS
	}
	return unix.IoctlSetPointerInt(d.fd, uint(req), bit)
}

func (d *device) Read(p []byte) (int, error) {
	return d.f.Read(p)
}

func (d *device) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return d.f.Write(p)
}

// WaitEvent blocks until the line reports a condition change: input
// became readable (RxChar), the output queue drained (TxEmpty), or an
// error/hangup was flagged. Close unblocks it through the self-pipe.
func (d *device) WaitEvent() (EventMask, error) {
	d.waitMu.Lock()
	defer d.waitMu.Unlock()
	if d.reported {
		time.Sleep(eventThrottle)
	}
	for {
		pfds := []unix.PollFd{
			{Fd: int32(d.fd), Events: unix.POLLIN},
			{Fd: int32(d.pipeR.Fd()), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(pfds, eventPollTimeout); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, fmt.Errorf("poll failed: %w", err)
		}
		// The write end hanging up is the close notification.
		if pfds[1].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return 0, ErrDeviceClosed
		}
		// A wait issued after Close finished sees the dead descriptor.
		if pfds[0].Revents&unix.POLLNVAL != 0 {
			return 0, ErrDeviceClosed
		}

		var mask EventMask
		if pfds[0].Revents&unix.POLLIN != 0 {
			mask |= EventRxChar
		}
		if pfds[0].Revents&unix.POLLERR != 0 {
			mask |= EventErr
		}
		if pfds[0].Revents&unix.POLLHUP != 0 {
			mask |= EventRLSD
		}
		if outq, err := unix.IoctlGetInt(d.fd, unix.TIOCOUTQ); err == nil {
			if d.lastOutq > 0 && outq == 0 {
				mask |= EventTxEmpty
			}
			d.lastOutq = outq
		}
		if mask != 0 {
			d.reported = true
			return mask, nil
		}
		d.reported = false
	}
}

// Close wakes a blocked WaitEvent and unblocks pending reads and
// writes by closing the descriptor. Safe to call more than once.
func (d *device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		// Hang up the pipe before anything else so a parked WaitEvent
		// returns even if it was between polls.
		if d.pipeW != nil {
			_ = d.pipeW.Close()
		}
		err = d.f.Close()
		// The read end must outlive any poll that still lists it;
		// waitMu is free once the waiter is out.
		d.waitMu.Lock()
		if d.pipeR != nil {
			_ = d.pipeR.Close()
		}
		d.waitMu.Unlock()
	})
	return err
}
