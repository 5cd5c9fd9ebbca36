package observer

import (
	"sync"
	"testing"
)

func TestList_AddNotifyRemove(t *testing.T) {
	l := New[int]("test", nil)

	var got []int
	id := l.Add(func(v int) { got = append(got, v) })

	l.Notify(1)
	l.Notify(2)

	if !l.Remove(id) {
		t.Fatal("Remove returned false for registered observer")
	}
	if l.Remove(id) {
		t.Error("second Remove returned true")
	}

	l.Notify(3)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("received %v, want [1 2]", got)
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestList_PanicIsolated(t *testing.T) {
	l := New[string]("test", nil)

	var before, after int
	l.Add(func(string) { before++ })
	l.Add(func(string) { panic("boom") })
	l.Add(func(string) { after++ })

	l.Notify("a")
	l.Notify("b")

	if before != 2 || after != 2 {
		t.Errorf("before = %d, after = %d, want 2 and 2", before, after)
	}
}

func TestList_RemoveDuringNotify(t *testing.T) {
	l := New[int]("test", nil)

	var calls int
	id2 := l.Add(func(int) {})
	l.Add(func(int) { calls++ })
	l.Add(func(int) { l.Remove(id2) })

	l.Notify(1)
	l.Notify(2)

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestList_Concurrent(t *testing.T) {
	l := New[int]("test", nil)

	var mu sync.Mutex
	total := 0
	l.Add(func(v int) {
		mu.Lock()
		total += v
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := l.Add(func(int) {})
			l.Notify(1)
			l.Remove(id)
		}()
	}
	wg.Wait()

	if total != 50 {
		t.Errorf("total = %d, want 50", total)
	}
}
