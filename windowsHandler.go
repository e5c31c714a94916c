//go:build windows

package comrelay

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/Gurux/gxcommon-go"
	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// DCB flag bits.
const (
	dcbFBinary         = 1 << 0
	dcbFParity         = 1 << 1
	dcbFOutxCtsFlow    = 1 << 2
	dcbFOutxDsrFlow    = 1 << 3
	dcbFDsrSensitivity = 1 << 6
	dcbFOutX           = 1 << 8
	dcbFInX            = 1 << 9
	dcbFErrorChar      = 1 << 10
	dcbFNull           = 1 << 11
	dcbFAbortOnError   = 1 << 14
	dcbFDtrControlMask = 0x3 << 4  // bits 4-5
	dcbFRtsControlMask = 0x3 << 12 // bits 12-13
)

// XON/XOFF control characters
const (
	xon  byte = 0x11
	xoff byte = 0x13
)

// RTS/DTR control values (DCB 2-bit fields)
const (
	rtsControlDisable uint32 = 0
	rtsControlEnable  uint32 = 1
	dtrControlDisable uint32 = 0
	dtrControlEnable  uint32 = 1
)

const maxDword = 0xFFFFFFFF

type device struct {
	h         windows.Handle
	ovRead    windows.Overlapped
	ovWrite   windows.Overlapped
	ovEvent   windows.Overlapped
	closeOnce sync.Once
	log       zerolog.Logger
}

// GetPortNames retrieves the list of available serial port names on a Windows system by querying the registry.
func GetPortNames() ([]string, error) {
	const path = `HARDWARE\DEVICEMAP\SERIALCOMM`

	key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
	if err != nil {
		if err == registry.ErrNotExist {
			return []string{}, nil
		}
		return nil, err
	}
	defer func() {
		_ = key.Close()
	}()

	valueNames, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, name := range valueNames {
		port, _, err := key.GetStringValue(name)
		if err == nil {
			ports = append(ports, port)
		}
	}
	return ports, nil
}

func setFlag(d *windows.DCB, bit uint32, on bool) {
	if on {
		d.Flags |= bit
	} else {
		d.Flags &^= bit
	}
}

func setRtsControl(d *windows.DCB, val uint32) {
	d.Flags &^= dcbFRtsControlMask
	d.Flags |= (val & 0x3) << 12
}

func setDtrControl(d *windows.DCB, val uint32) {
	d.Flags &^= dcbFDtrControlMask
	d.Flags |= (val & 0x3) << 4
}

// OpenDevice opens the named COM port for overlapped I/O and applies
// the line configuration. Reads never time out; the short write
// timeout keeps WaitCommEvent from completing instantly when nothing
// has changed.
func OpenDevice(name string, cfg Settings, log zerolog.Logger) (Device, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("invalid serial port name")
	}
	path := name
	if !strings.HasPrefix(name, `\\.\`) {
		path = `\\.\` + name
	}
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,   // not shared
		nil, // no security
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OVERLAPPED,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %q: %w", name, err)
	}
	d := &device{h: h, log: log}

	if err := d.updateSettings(cfg); err != nil {
		_ = d.Close()
		return nil, err
	}

	timeouts := windows.CommTimeouts{
		ReadIntervalTimeout:        maxDword, // the read itself never times out
		ReadTotalTimeoutConstant:   0,
		ReadTotalTimeoutMultiplier: 0,
		// Prevents WaitCommEvent from completing prematurely.
		WriteTotalTimeoutConstant:   10,
		WriteTotalTimeoutMultiplier: 0,
	}
	if err := windows.SetCommTimeouts(h, &timeouts); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("SetCommTimeouts failed: %w", err)
	}

	mask := uint32(windows.EV_RXCHAR | windows.EV_TXEMPTY | windows.EV_CTS |
		windows.EV_DSR | windows.EV_RLSD | windows.EV_ERR | windows.EV_RING)
	if err := windows.SetCommMask(h, mask); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("SetCommMask failed: %w", err)
	}

	for _, ov := range []*windows.Overlapped{&d.ovRead, &d.ovWrite, &d.ovEvent} {
		ev, err := windows.CreateEvent(nil, 1, 0, nil) // manual-reset
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("CreateEvent failed: %w", err)
		}
		ov.HEvent = ev
	}
	return d, nil
}

func (d *device) updateSettings(cfg Settings) error {
	var dcb windows.DCB
	dcb.DCBlength = uint32(unsafe.Sizeof(dcb))
	if err := windows.GetCommState(d.h, &dcb); err != nil {
		return fmt.Errorf("GetCommState failed: %w", err)
	}

	dcb.BaudRate = uint32(cfg.BaudRate)
	dcb.ByteSize = byte(cfg.DataBits)
	dcb.Parity = byte(cfg.Parity)
	switch cfg.StopBits {
	case gxcommon.StopBitsOne:
		dcb.StopBits = 0 // ONESTOPBIT
	case gxcommon.StopBitsTwo:
		dcb.StopBits = 2 // TWOSTOPBITS
	default:
		return errors.New("invalid stopbits")
	}

	setFlag(&dcb, dcbFBinary, true)
	setFlag(&dcb, dcbFParity, dcb.Parity != 0)
	setFlag(&dcb, dcbFNull, false)
	setFlag(&dcb, dcbFErrorChar, false)
	setFlag(&dcb, dcbFAbortOnError, false)
	setFlag(&dcb, dcbFDsrSensitivity, false)
	setFlag(&dcb, dcbFOutxDsrFlow, false)
	setFlag(&dcb, dcbFOutX, false)
	setFlag(&dcb, dcbFInX, false)
	setFlag(&dcb, dcbFOutxCtsFlow, cfg.CTSFlow)
	dcb.XonChar = xon
	dcb.XoffChar = xoff
	if cfg.AssertRTS {
		setRtsControl(&dcb, rtsControlEnable)
	} else {
		setRtsControl(&dcb, rtsControlDisable)
	}
	if cfg.AssertDTR {
		setDtrControl(&dcb, dtrControlEnable)
	} else {
		setDtrControl(&dcb, dtrControlDisable)
	}

	if err := windows.SetCommState(d.h, &dcb); err != nil {
		return fmt.Errorf("SetCommState failed: %w", err)
	}
	return nil
}

// Read may complete immediately with zero bytes when the input queue
// is empty; that is not end-of-stream. The caller waits for the next
// RXCHAR event before reading again.
func (d *device) Read(p []byte) (int, error) {
	_ = windows.ResetEvent(d.ovRead.HEvent)
	var n uint32
	err := windows.ReadFile(d.h, p, &n, &d.ovRead)
	if err == nil {
		return int(n), nil
	}
	if !errors.Is(err, windows.ERROR_IO_PENDING) {
		return 0, fmt.Errorf("read failed: %w", err)
	}
	if gerr := windows.GetOverlappedResult(d.h, &d.ovRead, &n, true); gerr != nil {
		if errors.Is(gerr, windows.ERROR_OPERATION_ABORTED) {
			return 0, ErrDeviceClosed
		}
		return 0, fmt.Errorf("read failed: %w", gerr)
	}
	return int(n), nil
}

func (d *device) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	_ = windows.ResetEvent(d.ovWrite.HEvent)
	var n uint32
	err := windows.WriteFile(d.h, p, &n, &d.ovWrite)
	if err == nil {
		return int(n), nil
	}
	if errors.Is(err, windows.ERROR_INVALID_USER_BUFFER) ||
		errors.Is(err, windows.ERROR_NOT_ENOUGH_MEMORY) {
		return 0, nil // nothing accepted, try later
	}
	if !errors.Is(err, windows.ERROR_IO_PENDING) {
		return 0, fmt.Errorf("write failed: %w", err)
	}
	if gerr := windows.GetOverlappedResult(d.h, &d.ovWrite, &n, true); gerr != nil {
		if errors.Is(gerr, windows.ERROR_OPERATION_ABORTED) {
			return 0, ErrDeviceClosed
		}
		return 0, fmt.Errorf("write failed: %w", gerr)
	}
	return int(n), nil
}

func (d *device) WaitEvent() (EventMask, error) {
	_ = windows.ResetEvent(d.ovEvent.HEvent)
	var events uint32
	err := windows.WaitCommEvent(d.h, &events, &d.ovEvent)
	if err != nil {
		if !errors.Is(err, windows.ERROR_IO_PENDING) {
			return 0, fmt.Errorf("WaitCommEvent failed: %w", err)
		}
		var dontCare uint32
		if gerr := windows.GetOverlappedResult(d.h, &d.ovEvent, &dontCare, true); gerr != nil {
			if errors.Is(gerr, windows.ERROR_OPERATION_ABORTED) {
				return 0, ErrDeviceClosed
			}
			return 0, fmt.Errorf("WaitCommEvent failed: %w", gerr)
		}
	}
	return translateCommEvents(events), nil
}

func translateCommEvents(events uint32) EventMask {
	var mask EventMask
	for _, m := range []struct {
		ev  uint32
		bit EventMask
	}{
		{windows.EV_RXCHAR, EventRxChar},
		{windows.EV_TXEMPTY, EventTxEmpty},
		{windows.EV_CTS, EventCTS},
		{windows.EV_DSR, EventDSR},
		{windows.EV_RLSD, EventRLSD},
		{windows.EV_BREAK, EventBreak},
		{windows.EV_RING, EventRing},
		{windows.EV_ERR, EventErr},
	} {
		if events&m.ev != 0 {
			mask |= m.bit
		}
	}
	return mask
}

// Close aborts pending operations and closes the handle. Safe to call
// more than once.
func (d *device) Close() error {
	d.closeOnce.Do(func() {
		if d.h != 0 && d.h != windows.InvalidHandle {
			_ = windows.CancelIoEx(d.h, nil)
		}
		for _, ov := range []*windows.Overlapped{&d.ovRead, &d.ovWrite, &d.ovEvent} {
			if ov.HEvent != 0 {
				_ = windows.CloseHandle(ov.HEvent)
				ov.HEvent = 0
			}
		}
		if d.h != 0 {
			_ = windows.CloseHandle(d.h)
			d.h = 0
		}
	})
	return nil
}
