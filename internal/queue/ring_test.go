package queue

import (
	"sync"
	"testing"
	"time"
)

func TestRing_SendReceiveOrder(t *testing.T) {
	r := New[int](10, 100)

	for i := 0; i < 5; i++ {
		if !r.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	for i := 0; i < 5; i++ {
		val, ok := r.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRing_GrowsUpToMax(t *testing.T) {
	r := New[int](4, 10)

	for i := 0; i < 20; i++ {
		r.Send(i)
	}

	stats := r.Stats()
	if stats.Capacity != 10 {
		t.Errorf("Capacity = %d, want 10", stats.Capacity)
	}
	if stats.ResizeCount != 2 {
		t.Errorf("ResizeCount = %d, want 2", stats.ResizeCount)
	}
	if stats.Dropped != 10 {
		t.Errorf("Dropped = %d, want 10", stats.Dropped)
	}
	if stats.TotalReceived != 20 {
		t.Errorf("TotalReceived = %d, want 20", stats.TotalReceived)
	}

	items := r.DrainTo(0)
	if len(items) != 10 {
		t.Fatalf("DrainTo(0) returned %d items, want 10", len(items))
	}
	for i, val := range items {
		if val != i+10 {
			t.Errorf("items[%d] = %d, want %d", i, val, i+10)
		}
	}
}

func TestRing_DropsOldestWhenFull(t *testing.T) {
	r := New[int](4, 4)

	// Wrap the indices before filling.
	r.Send(-1)
	r.TryReceive()

	for i := 0; i < 6; i++ {
		r.Send(i)
	}

	want := []int{2, 3, 4, 5}
	for _, w := range want {
		got, ok := r.TryReceive()
		if !ok || got != w {
			t.Errorf("TryReceive() = %d, %v; want %d, true", got, ok, w)
		}
	}
	if d := r.Stats().Dropped; d != 2 {
		t.Errorf("Dropped = %d, want 2", d)
	}
}

func TestRing_GrowWithWrapAround(t *testing.T) {
	r := New[int](5, 100)

	r.Send(1)
	r.Send(2)
	r.TryReceive()
	r.TryReceive()

	for i := 3; i <= 9; i++ {
		r.Send(i)
	}

	for want := 3; want <= 9; want++ {
		got, ok := r.TryReceive()
		if !ok {
			t.Fatalf("TryReceive failed, expected %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestRing_BlockingReceive(t *testing.T) {
	r := New[string](2, 2)

	received := make(chan string, 1)
	go func() {
		val, ok := r.Receive()
		if ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	r.Send("quote")

	select {
	case val := <-received:
		if val != "quote" {
			t.Errorf("received %q, want %q", val, "quote")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestRing_Close(t *testing.T) {
	r := New[int](10, 10)
	r.Send(1)
	r.Close()

	if r.Send(2) {
		t.Error("Send should return false after Close")
	}

	val, ok := r.Receive()
	if !ok || val != 1 {
		t.Errorf("Receive() = %d, %v; want 1, true", val, ok)
	}

	done := make(chan bool, 1)
	go func() {
		_, ok := r.Receive()
		done <- ok
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Receive blocked on a closed ring")
	}
}

func TestRing_CloseUnblocksReceive(t *testing.T) {
	r := New[int](10, 10)

	done := make(chan bool, 1)
	go func() {
		_, ok := r.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	r.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestRing_ConcurrentSendReceive(t *testing.T) {
	const numItems = 1000
	r := New[int](16, numItems)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			r.Send(i)
		}
	}()

	received := make([]int, 0, numItems)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			val, ok := r.Receive()
			if ok {
				received = append(received, val)
			}
		}
	}()

	wg.Wait()

	if len(received) != numItems {
		t.Fatalf("received %d items, want %d", len(received), numItems)
	}
	for i, val := range received {
		if val != i {
			t.Fatalf("received[%d] = %d, want %d", i, val, i)
		}
	}
}
