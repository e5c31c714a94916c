package comrelay

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRingBufferCountInvariant(t *testing.T) {
	b := NewRingBuffer("test", 8, zerolog.Nop())

	check := func() {
		require.Equal(t, b.Capacity(), b.Len()+b.Free())
		require.LessOrEqual(t, b.AvailableData(), b.Len())
		require.LessOrEqual(t, b.AvailableSpace(), b.Free())
	}

	check()
	for _, step := range []struct {
		write, read int
	}{
		{3, 0}, {0, 2}, {5, 0}, {0, 4}, {6, 0}, {0, 1}, {2, 0}, {0, 8},
	} {
		if step.write > 0 {
			n := step.write
			if s := b.AvailableSpace(); n > s {
				n = s
			}
			b.CommitWrite(n)
		}
		if step.read > 0 {
			n := step.read
			if d := b.AvailableData(); n > d {
				n = d
			}
			b.CommitRead(n)
		}
		check()
	}
}

func TestRingBufferWrapRoundTrip(t *testing.T) {
	b := NewRingBuffer("test", 7, zerolog.Nop())

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}

	var got bytes.Buffer
	remaining := payload
	// Interleave partial fills and partial drains so the cursors wrap
	// several times.
	chunk := 1
	for got.Len() < len(payload) {
		if len(remaining) > 0 {
			space := b.SpaceRegion()
			n := copy(space, remaining)
			if n > chunk {
				n = chunk
			}
			b.CommitWrite(n)
			remaining = remaining[n:]
		}
		if data := b.DataRegion(); len(data) > 0 {
			n := len(data)
			if n > chunk {
				n = chunk
			}
			got.Write(data[:n])
			b.CommitRead(n)
		}
		chunk = chunk%5 + 1
	}
	require.Equal(t, payload, got.Bytes())
	require.Equal(t, 0, b.Len())
}

func TestRingBufferSignals(t *testing.T) {
	b := NewRingBuffer("test", 4, zerolog.Nop())

	require.True(t, b.NotFull().IsSet())
	require.False(t, b.NotEmpty().IsSet())

	b.CommitWrite(1)
	require.True(t, b.NotFull().IsSet())
	require.True(t, b.NotEmpty().IsSet())

	b.CommitWrite(3)
	require.False(t, b.NotFull().IsSet())
	require.True(t, b.NotEmpty().IsSet())

	b.CommitRead(1)
	require.True(t, b.NotFull().IsSet())
	require.True(t, b.NotEmpty().IsSet())

	b.CommitRead(3)
	require.True(t, b.NotFull().IsSet())
	require.False(t, b.NotEmpty().IsSet())
}

func TestRingBufferOverrunClamped(t *testing.T) {
	b := NewRingBuffer("test", 4, zerolog.Nop())

	b.CommitWrite(100)
	require.Equal(t, 4, b.Len())
	require.Equal(t, 0, b.Free())

	b.CommitRead(100)
	require.Equal(t, 0, b.Len())
	require.Equal(t, 4, b.Free())
}

func TestRingBufferRegionsMatchCounts(t *testing.T) {
	b := NewRingBuffer("test", 5, zerolog.Nop())

	require.Len(t, b.SpaceRegion(), b.AvailableSpace())
	require.Len(t, b.DataRegion(), 0)

	b.CommitWrite(4)
	b.CommitRead(2)
	// Write cursor is near the end of the storage, so the contiguous
	// region is shorter than the total free count.
	require.Less(t, b.AvailableSpace(), b.Free())
	require.Len(t, b.SpaceRegion(), b.AvailableSpace())
	require.Len(t, b.DataRegion(), b.AvailableData())
}
