package comrelay

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerLineFormat(t *testing.T) {
	var out bytes.Buffer
	log := NewLogger(&out, zerolog.TraceLevel)

	log.Info().Msg("started")

	line := strings.TrimRight(out.String(), "\n")
	require.Regexp(t,
		regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z\] started$`),
		line)
}

func TestLoggerLevelFilter(t *testing.T) {
	var out bytes.Buffer
	log := NewLogger(&out, zerolog.InfoLevel)

	log.Trace().Msg("chatter")
	require.Empty(t, out.String())

	log.Info().Msg("kept")
	require.Contains(t, out.String(), "kept")
}

func TestLoggerFields(t *testing.T) {
	var out bytes.Buffer
	log := NewLogger(&out, zerolog.TraceLevel)

	log.Debug().Int("count", 5).Str("data", "abc").Msg("serial read")

	line := out.String()
	require.Contains(t, line, "serial read")
	require.Contains(t, line, "count=5")
	require.Contains(t, line, "data=abc")
}

func TestPreview(t *testing.T) {
	require.Equal(t, "ab..c", preview([]byte{'a', 'b', 0x01, 0xff, 'c'}))
	require.Equal(t, "", preview(nil))

	long := bytes.Repeat([]byte{'x'}, 200)
	require.Len(t, preview(long), previewMax)
}
