package history

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/jpalmerr/apimonitor/internal/status"
)

// messageField is the on-disk width of each message, including room for a
// terminating NUL.
const messageField = status.MaxMessageLen + 1

// RecordSize is the size in bytes of one serialized entry:
// int64 unix-nano timestamp, old result, new result, old message, new message.
const RecordSize = 8 + 1 + 1 + messageField + messageField

// Serialize encodes all entries, most recent first, as fixed-width records.
// len(blob) is always count*RecordSize.
func (l *Log) Serialize() (count uint32, blob []byte) {
	l.mu.RLock()
	entries := l.entriesLocked()
	l.mu.RUnlock()

	blob = make([]byte, 0, len(entries)*RecordSize)
	for _, e := range entries {
		blob = appendRecord(blob, e)
	}
	return uint32(len(entries)), blob
}

// Deserialize replaces the contents of the log with persisted entries.
//
// The blob must hold exactly count records, most recent first, each with a
// known result tag. On any mismatch nothing is loaded, the log is left empty
// and an error wrapping [ErrCorrupt] is returned. Records that do not fit the
// current capacity are dropped, oldest first.
func (l *Log) Deserialize(count uint32, blob []byte) error {
	expected := uint64(count) * RecordSize
	if uint64(len(blob)) != expected {
		l.Clear()
		return fmt.Errorf("%w: expected %d bytes for %d entries, got %d", ErrCorrupt, expected, count, len(blob))
	}

	entries := make([]Entry, count)
	for i := range entries {
		e, err := decodeRecord(blob[i*RecordSize : (i+1)*RecordSize])
		if err != nil {
			l.Clear()
			return fmt.Errorf("%w: record %d: %v", ErrCorrupt, i, err)
		}
		entries[i] = e
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.count = 0
	l.cursor = 0

	load := min(len(entries), len(l.buf))
	// stored newest first; replay oldest first so ring order matches appends
	for i := load - 1; i >= 0; i-- {
		l.appendLocked(entries[i])
	}
	return nil
}

func appendRecord(dst []byte, e Entry) []byte {
	var ts int64
	if !e.Time.IsZero() {
		ts = e.Time.UnixNano()
	}
	dst = binary.LittleEndian.AppendUint64(dst, uint64(ts))
	dst = append(dst, byte(e.OldResult), byte(e.NewResult))
	dst = appendMessage(dst, e.OldMessage)
	dst = appendMessage(dst, e.NewMessage)
	return dst
}

func appendMessage(dst []byte, msg string) []byte {
	msg = status.TruncateMessage(msg)
	var field [messageField]byte
	copy(field[:], msg)
	return append(dst, field[:]...)
}

func decodeRecord(rec []byte) (Entry, error) {
	ts := int64(binary.LittleEndian.Uint64(rec[0:8]))
	oldResult := status.Result(rec[8])
	newResult := status.Result(rec[9])
	if !oldResult.Valid() || !newResult.Valid() {
		return Entry{}, fmt.Errorf("unknown result tag %d/%d", rec[8], rec[9])
	}

	e := Entry{
		OldResult:  oldResult,
		NewResult:  newResult,
		OldMessage: decodeMessage(rec[10 : 10+messageField]),
		NewMessage: decodeMessage(rec[10+messageField : 10+2*messageField]),
	}
	if ts != 0 {
		e.Time = time.Unix(0, ts)
	}
	return e, nil
}

func decodeMessage(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}
