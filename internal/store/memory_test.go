package store

import (
	"sync"
	"testing"
	"time"
)

func statusEvent(result string) Event {
	return Event{Kind: KindStatus, Data: StatusView{Result: result}}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}
	if len(store.GetAll()) != 0 {
		t.Errorf("GetAll() = %v items, want 0", len(store.GetAll()))
	}
	if _, ok := store.Latest(KindStatus); ok {
		t.Error("Latest() on empty store should report false")
	}
}

func TestMemoryStore_PublishKeepsLatestPerKind(t *testing.T) {
	store := NewMemoryStore()

	store.Publish(statusEvent("success"))
	store.Publish(Event{Kind: KindHistory, Data: HistoryView{}})
	store.Publish(statusEvent("fail"))

	e, ok := store.Latest(KindStatus)
	if !ok {
		t.Fatal("Latest(status) missing")
	}
	if got := e.Data.(StatusView).Result; got != "fail" {
		t.Errorf("Latest(status).Result = %q, want fail", got)
	}
	if e.At.IsZero() {
		t.Error("Publish should stamp At")
	}
	if len(store.GetAll()) != 2 {
		t.Errorf("GetAll() = %d items, want 2", len(store.GetAll()))
	}
}

func TestMemoryStore_GetAllOrder(t *testing.T) {
	store := NewMemoryStore()

	store.Publish(Event{Kind: KindValidation, Data: ValidationView{Generation: 1}})
	store.Publish(Event{Kind: KindHistory, Data: HistoryView{}})
	store.Publish(statusEvent("success"))
	store.Publish(Event{Kind: KindSettings, Data: SettingsView{}})

	var got []Kind
	for _, e := range store.GetAll() {
		got = append(got, e.Kind)
	}
	want := []Kind{KindSettings, KindStatus, KindHistory, KindValidation}
	if len(got) != len(want) {
		t.Fatalf("GetAll() kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GetAll()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	store.Publish(statusEvent("success"))

	select {
	case e := <-ch:
		if e.Kind != KindStatus {
			t.Errorf("received kind %v, want status", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive event")
	}
}

func TestMemoryStore_MultipleSubscribers(t *testing.T) {
	store := NewMemoryStore()
	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	defer store.Unsubscribe(ch1)
	defer store.Unsubscribe(ch2)

	store.Publish(statusEvent("fail"))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Errorf("subscriber %d did not receive event", i)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()
	ch := store.Subscribe()

	store.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// second call is a no-op
	store.Unsubscribe(ch)
	store.Publish(statusEvent("success"))
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()

	// never read
	_ = store.Subscribe()

	ch2 := store.Subscribe()
	go func() {
		for range ch2 {
		}
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*subscriberBuffer; i++ {
			store.Publish(statusEvent("success"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Publish() blocked on slow subscriber")
	}
	store.Unsubscribe(ch2)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Publish(statusEvent("success"))
				store.Publish(Event{Kind: KindProgress, Data: ProgressView{Attempt: j}})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.GetAll()
				_, _ = store.Latest(KindStatus)
			}
		}()
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}
	wg.Wait()
}
