package comrelay

import (
	"sync"

	"github.com/rs/zerolog"
)

// RingBuffer is a bounded byte queue for one producer and one consumer
// running concurrently. The backing storage holds capacity+1 bytes so
// that equal cursors always mean "empty" and never "full".
//
// The producer fills SpaceRegion and then calls CommitWrite; the
// consumer drains DataRegion and then calls CommitRead. A region stays
// valid until its matching commit, even while the other side commits.
// Cursor and signal bookkeeping happens under the mutex; the regions
// themselves are accessed outside it.
type RingBuffer struct {
	mu         sync.Mutex
	buf        []byte
	dataIndex  int // index of the first buffered byte
	spaceIndex int // index of the first free byte
	notEmpty   *Signal
	notFull    *Signal
	name       string
	log        zerolog.Logger
}

// NewRingBuffer creates a buffer that holds up to capacity bytes.
func NewRingBuffer(name string, capacity int, log zerolog.Logger) *RingBuffer {
	return &RingBuffer{
		buf:      make([]byte, capacity+1),
		notEmpty: NewSignal(false),
		notFull:  NewSignal(true),
		name:     name,
		log:      log,
	}
}

// Bytes readable without wrapping past the end of the storage.
func (b *RingBuffer) findData() int {
	if b.spaceIndex >= b.dataIndex {
		return b.spaceIndex - b.dataIndex
	}
	return len(b.buf) - b.dataIndex
}

// Bytes writable without wrapping past the end of the storage.
func (b *RingBuffer) findSpace() int {
	if b.spaceIndex >= b.dataIndex {
		if b.dataIndex == 0 {
			return len(b.buf) - b.spaceIndex - 1
		}
		return len(b.buf) - b.spaceIndex
	}
	return b.dataIndex - b.spaceIndex - 1
}

// AvailableData returns the contiguous byte count readable from the
// read cursor. A wrapped buffer needs a second round to fully drain.
func (b *RingBuffer) AvailableData() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findData()
}

// AvailableSpace returns the contiguous byte count writable at the
// write cursor. A wrapped buffer needs a second round to fully fill.
func (b *RingBuffer) AvailableSpace() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findSpace()
}

// Len returns the total number of buffered bytes, wrapped or not.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return (b.spaceIndex - b.dataIndex + len(b.buf)) % len(b.buf)
}

// Free returns the total number of free bytes, wrapped or not.
func (b *RingBuffer) Free() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	used := (b.spaceIndex - b.dataIndex + len(b.buf)) % len(b.buf)
	return len(b.buf) - 1 - used
}

// Capacity returns the usable size of the buffer.
func (b *RingBuffer) Capacity() int {
	return len(b.buf) - 1
}

// DataRegion returns the contiguous buffered bytes at the read cursor,
// valid until the next CommitRead.
func (b *RingBuffer) DataRegion() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf[b.dataIndex : b.dataIndex+b.findData()]
}

// SpaceRegion returns the contiguous free bytes at the write cursor,
// valid until the next CommitWrite.
func (b *RingBuffer) SpaceRegion() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf[b.spaceIndex : b.spaceIndex+b.findSpace()]
}

// CommitWrite advances the write cursor by n bytes the producer filled
// in. An n beyond the available space is an overrun: logged, clamped,
// never fatal. Sets notEmpty and clears notFull when the buffer fills.
func (b *RingBuffer) CommitWrite(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	toAdd := b.findSpace()
	if n > toAdd {
		b.log.Info().Str("buffer", b.name).Int("count", n).Int("space", toAdd).Msg("buffer overrun")
	} else {
		toAdd = n
	}
	b.spaceIndex += toAdd
	if b.spaceIndex == len(b.buf) {
		b.spaceIndex = 0
	}
	b.notEmpty.Set()
	if b.findSpace() <= 0 {
		b.notFull.Clear()
	}
	b.mu.Unlock()
}

// CommitRead advances the read cursor by n bytes the consumer drained.
// An n beyond the available data is an underrun: logged, clamped,
// never fatal. Sets notFull and clears notEmpty when the buffer empties.
func (b *RingBuffer) CommitRead(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	toRemove := b.findData()
	if n > toRemove {
		b.log.Info().Str("buffer", b.name).Int("count", n).Int("data", toRemove).Msg("buffer underrun")
	} else {
		toRemove = n
	}
	b.dataIndex += toRemove
	if b.dataIndex == len(b.buf) {
		b.dataIndex = 0
	}
	b.notFull.Set()
	if b.findData() <= 0 {
		b.notEmpty.Clear()
	}
	b.mu.Unlock()
}

// NotEmpty is set while the buffer holds at least one byte.
func (b *RingBuffer) NotEmpty() *Signal { return b.notEmpty }

// NotFull is set while the buffer has room for at least one byte.
// The transport clears it while a device read is outstanding; it is
// re-armed by the next CommitRead.
func (b *RingBuffer) NotFull() *Signal { return b.notFull }
