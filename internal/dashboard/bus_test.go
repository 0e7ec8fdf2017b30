package dashboard

import (
	"sync"
	"testing"
	"time"
)

func TestSyncBusHandlerOrder(t *testing.T) {
	b := NewSyncBus()
	var got []string
	b.Subscribe(func(a Action) { got = append(got, "first:"+string(a.Type)) })
	b.Subscribe(func(a Action) { got = append(got, "second:"+string(a.Type)) })

	b.Dispatch(Action{Type: SelectCompany})

	want := []string{"first:SELECT_COMPANY", "second:SELECT_COMPANY"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSyncBusNestedDispatchQueued(t *testing.T) {
	b := NewSyncBus()
	var got []ActionType
	b.Subscribe(func(a Action) {
		got = append(got, a.Type)
		if a.Type == SelectCompany {
			b.Dispatch(Action{Type: NewsLoading})
		}
	})
	b.Subscribe(func(a Action) {
		got = append(got, a.Type)
	})

	b.Dispatch(Action{Type: SelectCompany})

	// Both handlers see SELECT_COMPANY before either sees the nested action.
	want := []ActionType{SelectCompany, SelectCompany, NewsLoading, NewsLoading}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSyncBusUnsubscribe(t *testing.T) {
	b := NewSyncBus()
	calls := 0
	id := b.Subscribe(func(Action) { calls++ })
	b.Dispatch(Action{Type: CloseTweets})
	b.Unsubscribe(id)
	b.Dispatch(Action{Type: CloseTweets})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSyncBusConcurrentDispatch(t *testing.T) {
	b := NewSyncBus()
	var mu sync.Mutex
	inside := 0
	overlap := false
	count := 0
	b.Subscribe(func(Action) {
		mu.Lock()
		inside++
		if inside > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inside--
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Dispatch(Action{Type: SwitchDate})
		}()
	}
	wg.Wait()

	// A Dispatch may return before its action is drained by another
	// goroutine; wait for the last drain to finish.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := count
		mu.Unlock()
		if n == 8 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Error("handlers ran concurrently")
	}
	if count != 8 {
		t.Errorf("count = %d, want 8", count)
	}
}
