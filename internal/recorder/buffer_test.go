package recorder

import (
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_SendReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	for i := 0; i < 5; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}

	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestGrowableBuffer_GrowsAt70Percent(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	// The 7th send crosses 70% of capacity 10
	for i := 0; i < 7; i++ {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Capacity <= 10 {
		t.Errorf("Capacity = %d, expected growth past 10", stats.Capacity)
	}
	if stats.Grows != 1 {
		t.Errorf("Grows = %d, want 1", stats.Grows)
	}

	// Items survive the resize in order
	for i := 0; i < 7; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
}

func TestGrowableBuffer_GrowPreservesWrappedItems(t *testing.T) {
	buf := NewGrowableBuffer[int](20)

	// Advance head so the live window later wraps past the end of the ring
	for i := 0; i < 10; i++ {
		buf.Send(i)
	}
	for i := 0; i < 8; i++ {
		buf.TryReceive()
	}

	// The 12th send here grows the buffer while items straddle the wrap
	for i := 10; i < 22; i++ {
		buf.Send(i)
	}

	if stats := buf.Stats(); stats.Grows != 1 {
		t.Fatalf("Grows = %d, want 1", stats.Grows)
	}

	for want := 8; want < 22; want++ {
		got, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false, want %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestGrowableBuffer_ManyItems(t *testing.T) {
	buf := NewGrowableBuffer[int](4)

	for i := 0; i < 500; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Count != 500 {
		t.Errorf("Count = %d, want 500", stats.Count)
	}
	if stats.Grows < 3 {
		t.Errorf("Grows = %d, expected at least 3", stats.Grows)
	}

	for i := 0; i < 500; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
}

func TestGrowableBuffer_ReceiveBlocks(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	received := make(chan int, 1)
	go func() {
		if val, ok := buf.Receive(); ok {
			received <- val
		}
	}()

	// Let the receiver park on the condition first
	time.Sleep(10 * time.Millisecond)

	buf.Send(42)

	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("received %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestGrowableBuffer_Close(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	buf.Send(1)
	buf.Send(2)
	buf.Close()

	if buf.Send(3) {
		t.Error("Send should return false after Close")
	}

	// Remaining items still drain
	if val, ok := buf.TryReceive(); !ok || val != 1 {
		t.Errorf("TryReceive() = %d, %v; want 1, true", val, ok)
	}
	if val, ok := buf.TryReceive(); !ok || val != 2 {
		t.Errorf("TryReceive() = %d, %v; want 2, true", val, ok)
	}
	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive should return false when empty and closed")
	}

	// Blocking receive on a drained closed buffer returns immediately
	if _, ok := buf.Receive(); ok {
		t.Error("Receive should return false when closed and empty")
	}
}

func TestGrowableBuffer_CloseUnblocksReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	done := make(chan bool, 1)
	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestGrowableBuffer_DrainTo(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	for i := 0; i < 10; i++ {
		buf.Send(i)
	}

	items := buf.DrainTo(4)
	if len(items) != 4 {
		t.Fatalf("DrainTo(4) returned %d items, want 4", len(items))
	}
	for i, val := range items {
		if val != i {
			t.Errorf("items[%d] = %d, want %d", i, val, i)
		}
	}

	// max <= 0 drains everything left
	items = buf.DrainTo(0)
	if len(items) != 6 {
		t.Errorf("DrainTo(0) returned %d items, want 6", len(items))
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}

	if items = buf.DrainTo(0); items != nil {
		t.Errorf("DrainTo on empty buffer = %v, want nil", items)
	}
}

func TestGrowableBuffer_ConcurrentSendReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](8)
	const numItems = 1000

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Send(i)
		}
	}()

	received := make([]int, 0, numItems)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			if val, ok := buf.Receive(); ok {
				received = append(received, val)
			}
		}
	}()

	wg.Wait()

	if len(received) != numItems {
		t.Fatalf("received %d items, want %d", len(received), numItems)
	}
	// Single producer, single consumer: FIFO order holds end to end
	for i, val := range received {
		if val != i {
			t.Fatalf("received[%d] = %d, want %d", i, val, i)
		}
	}
}

func TestGrowableBuffer_Stats(t *testing.T) {
	buf := NewGrowableBuffer[int](10)

	stats := buf.Stats()
	if stats.Count != 0 || stats.Capacity != 10 || stats.TotalIn != 0 || stats.TotalOut != 0 {
		t.Errorf("initial stats = %+v", stats)
	}

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	buf.TryReceive()

	stats = buf.Stats()
	if stats.Count != 2 {
		t.Errorf("Count = %d, want 2", stats.Count)
	}
	if stats.TotalIn != 3 {
		t.Errorf("TotalIn = %d, want 3", stats.TotalIn)
	}
	if stats.TotalOut != 1 {
		t.Errorf("TotalOut = %d, want 1", stats.TotalOut)
	}
}

func TestNewGrowableBuffer_MinCapacity(t *testing.T) {
	if buf := NewGrowableBuffer[int](0); buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1 for initial capacity 0", buf.Cap())
	}
	if buf := NewGrowableBuffer[int](-3); buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1 for negative initial capacity", buf.Cap())
	}
}
