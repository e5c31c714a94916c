package comrelay

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Format used to serialize event timestamps.
	stampFormat = "2006-01-02T15:04:05.000Z07:00"
	// Format of the timestamp prefix on each emitted line.
	printFormat = "[2006-01-02T15:04:05.000Z]"

	previewMax = 64
)

// NewLogger returns a logger that writes one line per event in the
// form "[2026-01-02T15:04:05.000Z] message key=value ...", with the
// timestamp in UTC.
func NewLogger(out io.Writer, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = stampFormat
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		PartsOrder: []string{zerolog.TimestampFieldName, zerolog.MessageFieldName},
		FormatTimestamp: func(i interface{}) string {
			s, ok := i.(string)
			if !ok {
				return printFormat
			}
			t, err := time.Parse(stampFormat, s)
			if err != nil {
				return "[" + s + "]"
			}
			return t.UTC().Format(printFormat)
		},
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// preview renders transferred bytes for debug and trace lines.
// Non-printable bytes become '.' and the result is capped.
func preview(p []byte) string {
	n := len(p)
	if n > previewMax {
		n = previewMax
	}
	b := make([]byte, n)
	for i, c := range p[:n] {
		if c < ' ' || c > '~' {
			b[i] = '.'
		} else {
			b[i] = c
		}
	}
	return string(b)
}
