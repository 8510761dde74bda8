package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/apimonitor/internal/status"
)

// entry builds a distinguishable entry for sequence number n.
func entry(n int) Entry {
	return Entry{
		Time:       time.Unix(1700000000+int64(n), 0),
		OldResult:  status.Success,
		OldMessage: fmt.Sprintf("old-%d", n),
		NewResult:  status.Fail,
		NewMessage: fmt.Sprintf("new-%d", n),
	}
}

// fill appends entries 0..n-1 in order.
func fill(l *Log, n int) {
	for i := 0; i < n; i++ {
		l.Append(entry(i))
	}
}

// assertNewestFirst checks that the log holds exactly entries last, last-1, ...
func assertNewestFirst(t *testing.T, l *Log, last, want int) {
	t.Helper()
	if l.Len() != want {
		t.Fatalf("Len() = %d, want %d", l.Len(), want)
	}
	for i := 0; i < want; i++ {
		got, err := l.Get(i)
		if err != nil {
			t.Fatalf("Get(%d) error = %v", i, err)
		}
		if wantMsg := fmt.Sprintf("new-%d", last-i); got.NewMessage != wantMsg {
			t.Fatalf("Get(%d).NewMessage = %q, want %q", i, got.NewMessage, wantMsg)
		}
	}
}

func TestClampCapacity(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, MinCapacity},
		{0, MinCapacity},
		{9, MinCapacity},
		{10, 10},
		{500, 500},
		{10000, 10000},
		{10001, MaxCapacity},
	}
	for _, tt := range tests {
		if got := ClampCapacity(tt.in); got != tt.want {
			t.Errorf("ClampCapacity(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := New(3).Cap(); got != MinCapacity {
		t.Errorf("New(3).Cap() = %d, want %d", got, MinCapacity)
	}
}

func TestLog_AppendCountAndOrder(t *testing.T) {
	for _, capacity := range []int{10, 11, 37} {
		for _, n := range []int{0, 1, 5, capacity - 1, capacity, capacity + 1, 3*capacity + 7} {
			t.Run(fmt.Sprintf("cap=%d/n=%d", capacity, n), func(t *testing.T) {
				l := New(capacity)
				fill(l, n)
				assertNewestFirst(t, l, n-1, min(n, capacity))
			})
		}
	}
}

func TestLog_GetOutOfRange(t *testing.T) {
	l := New(10)
	fill(l, 3)

	for _, i := range []int{-1, 3, 10} {
		if _, err := l.Get(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Get(%d) error = %v, want ErrOutOfRange", i, err)
		}
	}
}

func TestLog_AppendTruncatesMessages(t *testing.T) {
	l := New(10)
	l.Append(Entry{OldMessage: strings.Repeat("a", 400), NewMessage: strings.Repeat("b", 256)})

	got, _ := l.Get(0)
	if len(got.OldMessage) != status.MaxMessageLen || len(got.NewMessage) != status.MaxMessageLen {
		t.Errorf("message lengths = %d/%d, want %d", len(got.OldMessage), len(got.NewMessage), status.MaxMessageLen)
	}
}

func TestLog_Resize(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		appends   int
		newCap    int
		wantCount int
	}{
		{"grow partial", 10, 4, 20, 4},
		{"grow wrapped", 10, 25, 30, 10},
		{"shrink keeps newest", 20, 15, 10, 10},
		{"shrink wrapped", 12, 40, 10, 10},
		{"shrink below count clamps", 50, 50, 3, 10},
		{"same capacity no-op", 10, 13, 10, 10},
		{"empty", 10, 0, 15, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.capacity)
			fill(l, tt.appends)

			l.Resize(tt.newCap)

			if l.Cap() != ClampCapacity(tt.newCap) {
				t.Errorf("Cap() = %d, want %d", l.Cap(), ClampCapacity(tt.newCap))
			}
			assertNewestFirst(t, l, tt.appends-1, tt.wantCount)

			// appends after a resize continue the same sequence
			l.Append(entry(tt.appends))
			assertNewestFirst(t, l, tt.appends, min(tt.wantCount+1, l.Cap()))
		})
	}
}

func TestLog_Clear(t *testing.T) {
	l := New(10)
	fill(l, 12)
	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", l.Len())
	}
	if l.Cap() != 10 {
		t.Errorf("Cap() = %d after Clear, want 10", l.Cap())
	}
	if _, err := l.Get(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Get(0) after Clear error = %v, want ErrOutOfRange", err)
	}

	l.Append(entry(99))
	assertNewestFirst(t, l, 99, 1)
}

func TestLog_Entries(t *testing.T) {
	l := New(10)
	fill(l, 13)

	entries := l.Entries()
	if len(entries) != 10 {
		t.Fatalf("len(Entries()) = %d, want 10", len(entries))
	}
	if entries[0].NewMessage != "new-12" || entries[9].NewMessage != "new-3" {
		t.Errorf("Entries() order = %q..%q", entries[0].NewMessage, entries[9].NewMessage)
	}

	// modifying the copy does not affect the log
	entries[0].NewMessage = "changed"
	if got, _ := l.Get(0); got.NewMessage != "new-12" {
		t.Error("Entries() should return a copy")
	}
}

func TestLog_SerializeRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 23} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			src := New(10)
			fill(src, n)
			src.Append(Entry{Time: time.Time{}, OldResult: status.None, NewResult: status.Error, NewMessage: "Request timed out"})

			count, blob := src.Serialize()
			if int(count) != src.Len() {
				t.Fatalf("count = %d, want %d", count, src.Len())
			}
			if len(blob) != int(count)*RecordSize {
				t.Fatalf("len(blob) = %d, want %d", len(blob), int(count)*RecordSize)
			}

			dst := New(10)
			if err := dst.Deserialize(count, blob); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if dst.Len() != src.Len() {
				t.Fatalf("Len() = %d, want %d", dst.Len(), src.Len())
			}
			for i := 0; i < src.Len(); i++ {
				want, _ := src.Get(i)
				got, _ := dst.Get(i)
				if !got.Time.Equal(want.Time) || got.OldResult != want.OldResult || got.NewResult != want.NewResult ||
					got.OldMessage != want.OldMessage || got.NewMessage != want.NewMessage {
					t.Errorf("Get(%d) = %+v, want %+v", i, got, want)
				}
			}

			// the restored ring keeps appending in sequence
			dst.Append(entry(1000))
			if got, _ := dst.Get(0); got.NewMessage != "new-1000" {
				t.Errorf("Get(0) after append = %q", got.NewMessage)
			}
		})
	}
}

func TestLog_DeserializeIntoSmallerCapacity(t *testing.T) {
	src := New(30)
	fill(src, 25)
	count, blob := src.Serialize()

	dst := New(10)
	if err := dst.Deserialize(count, blob); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	assertNewestFirst(t, dst, 24, 10)
}

func TestLog_DeserializeRejectsCorruptData(t *testing.T) {
	src := New(10)
	fill(src, 5)
	count, blob := src.Serialize()

	badTag := append([]byte(nil), blob...)
	badTag[RecordSize+8] = 42

	tests := []struct {
		name  string
		count uint32
		blob  []byte
	}{
		{"count too high", count + 1, blob},
		{"count too low", count - 1, blob},
		{"truncated blob", count, blob[:len(blob)-1]},
		{"padded blob", count, append(append([]byte(nil), blob...), 0)},
		{"count without data", 3, nil},
		{"unknown result tag", count, badTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := New(10)
			fill(dst, 3) // pre-existing content must not survive

			err := dst.Deserialize(tt.count, tt.blob)
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Deserialize() error = %v, want ErrCorrupt", err)
			}
			if dst.Len() != 0 {
				t.Errorf("Len() = %d after corrupt load, want 0", dst.Len())
			}
		})
	}
}

func TestLog_DeserializeEmpty(t *testing.T) {
	l := New(10)
	fill(l, 2)
	if err := l.Deserialize(0, nil); err != nil {
		t.Fatalf("Deserialize(0, nil) error = %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestLog_ConcurrentReaders(t *testing.T) {
	l := New(50)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			l.Append(entry(i))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = l.Entries()
				_, _ = l.Get(0)
				_, _ = l.Serialize()
			}
		}()
	}

	wg.Wait()
	assertNewestFirst(t, l, 999, 50)
}
