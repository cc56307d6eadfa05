package signal

import (
	"sync"
	"testing"
)

func TestValue_GetSet(t *testing.T) {
	v := New(42)

	if got := v.Get(); got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}

	v.Set(7)
	if got := v.Get(); got != 7 {
		t.Errorf("Get() after Set = %d, want 7", got)
	}
}

func TestValue_Subscribe(t *testing.T) {
	v := New("initial")

	var got []string
	v.Subscribe(func(s string) {
		got = append(got, s)
	})

	v.Set("a")
	v.Set("b")

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("observer saw %v, want [a b]", got)
	}
}

func TestValue_SubscribeDoesNotFireOnRegistration(t *testing.T) {
	v := New(1)

	called := false
	v.Subscribe(func(int) { called = true })

	if called {
		t.Error("observer fired on Subscribe without a Set")
	}
}

func TestValue_Unsubscribe(t *testing.T) {
	v := New(0)

	count := 0
	cancel := v.Subscribe(func(int) { count++ })

	v.Set(1)
	cancel()
	v.Set(2)

	if count != 1 {
		t.Errorf("observer called %d times after cancel, want 1", count)
	}

	// Cancelling again must be a no-op.
	cancel()
	v.Set(3)
	if count != 1 {
		t.Errorf("observer called %d times after double cancel, want 1", count)
	}
}

func TestValue_MultipleObservers(t *testing.T) {
	v := New(0)

	var a, b int
	v.Subscribe(func(n int) { a = n })
	v.Subscribe(func(n int) { b = n })

	v.Set(5)

	if a != 5 || b != 5 {
		t.Errorf("observers saw a=%d b=%d, want 5 5", a, b)
	}
}

func TestValue_ObserverMayReenter(t *testing.T) {
	v := New(0)

	var seen []int
	v.Subscribe(func(n int) {
		seen = append(seen, n)
		if n == 1 {
			// Re-entering Set from an observer must not deadlock.
			v.Set(2)
		}
	})

	v.Set(1)

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("observer saw %v, want [1 2]", seen)
	}
	if got := v.Get(); got != 2 {
		t.Errorf("Get() = %d, want 2", got)
	}
}

func TestValue_UnsubscribeDuringNotify(t *testing.T) {
	v := New(0)

	count := 0
	var cancel func()
	cancel = v.Subscribe(func(int) {
		count++
		cancel()
	})

	v.Set(1)
	v.Set(2)

	if count != 1 {
		t.Errorf("observer called %d times, want 1", count)
	}
}

func TestValue_ConcurrentAccess(t *testing.T) {
	v := New(0)

	cancel := v.Subscribe(func(int) {})
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v.Set(n)
				_ = v.Get()
			}
		}(i)
	}
	wg.Wait()
}
