package comrelay

import (
	"errors"
	"strings"

	"github.com/Gurux/gxcommon-go"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrDeviceClosed is reported by pending device operations that were
// interrupted by Close.
var ErrDeviceClosed = errors.New("serial device closed")

// EventMask reports which line conditions an event wait observed.
type EventMask uint32

const (
	// EventRxChar: at least one byte arrived in the input queue.
	EventRxChar EventMask = 1 << iota
	// EventTxEmpty: the output queue drained.
	EventTxEmpty
	EventCTS
	EventDSR
	EventRLSD
	EventBreak
	EventRing
	EventErr
)

var eventNames = []struct {
	bit  EventMask
	name string
}{
	{EventRxChar, "RXCHAR"},
	{EventTxEmpty, "TXEMPTY"},
	{EventCTS, "CTS"},
	{EventDSR, "DSR"},
	{EventRLSD, "RLSD"},
	{EventBreak, "BREAK"},
	{EventRing, "RING"},
	{EventErr, "ERR"},
}

func (m EventMask) String() string {
	if m == 0 {
		return "none"
	}
	var b strings.Builder
	for _, e := range eventNames {
		if m&e.bit != 0 {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(e.name)
		}
	}
	return b.String()
}

// Device is the serial transport endpoint the relay drives. Each call
// is issued from its own goroutine, so implementations may block.
//
// Read and Write may complete with (0, nil). For Read that means no
// bytes are currently queued, not end-of-stream; the caller waits for
// the next EventRxChar instead of reissuing immediately. For Write it
// means nothing was accepted yet, try again later.
type Device interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// WaitEvent blocks until the line reports a condition change and
	// returns the accumulated mask.
	WaitEvent() (EventMask, error)
	Close() error
}

// Settings is the fixed line configuration applied when the device is
// opened. The relay does not reconfigure the line afterwards.
type Settings struct {
	BaudRate gxcommon.BaudRate
	DataBits int
	Parity   gxcommon.Parity
	StopBits gxcommon.StopBits
	// AssertDTR and AssertRTS raise the modem lines on open.
	AssertDTR bool
	AssertRTS bool
	// CTSFlow gates transmission on the CTS line.
	CTSFlow bool
}

// DefaultSettings returns the relay's line configuration:
// 9600 8N1 binary, DTR and RTS asserted, output flow controlled by
// CTS, software flow control off, abort-on-error off.
func DefaultSettings() Settings {
	return Settings{
		BaudRate:  gxcommon.BaudRate(9600),
		DataBits:  8,
		Parity:    gxcommon.ParityNone,
		StopBits:  gxcommon.StopBitsOne,
		AssertDTR: true,
		AssertRTS: true,
		CTSFlow:   true,
	}
}

// Printer resolves the operator-facing messages registered below.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

//nolint:errcheck
func init() {
	// --- English (default) ---
	message.SetString(language.AmericanEnglish, "msg.usage", "usage: %s <serial port> [log file]")
	message.SetString(language.AmericanEnglish, "msg.log_open_failed", "cannot open log file %s: %v")
	message.SetString(language.AmericanEnglish, "msg.opening_port", "Opening %s")
	message.SetString(language.AmericanEnglish, "msg.open_failed", "Opening %s failed: %v")
	message.SetString(language.AmericanEnglish, "msg.available_ports", "Available serial ports: %s")
	message.SetString(language.AmericanEnglish, "msg.port_closed", "Closed %s")

	// --- German (de) ---
	message.SetString(language.German, "msg.usage", "Aufruf: %s <serieller Port> [Protokolldatei]")
	message.SetString(language.German, "msg.log_open_failed", "Protokolldatei %s kann nicht geöffnet werden: %v")
	message.SetString(language.German, "msg.opening_port", "Öffne %s")
	message.SetString(language.German, "msg.open_failed", "Öffnen von %s fehlgeschlagen: %v")
	message.SetString(language.German, "msg.available_ports", "Verfügbare serielle Ports: %s")
	message.SetString(language.German, "msg.port_closed", "%s geschlossen")
}
