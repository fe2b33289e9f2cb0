package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func progressEvent(taskID string, pct float64) *TaskEvent {
	ev := NewTaskEvent(EventTaskProgress, taskID, "upload", "file.bin")
	ev.Percent = pct
	return ev
}

func TestProgressChannel_PublishDrain(t *testing.T) {
	pc := NewProgressChannel(10)
	defer pc.Close()

	ctx := context.Background()
	for _, pct := range []float64{25, 50, 75, 100} {
		if err := pc.Publish(ctx, progressEvent("t1", pct)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	batch := pc.Drain()
	if len(batch) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(batch))
	}
	for i, want := range []float64{25, 50, 75, 100} {
		ev := batch[i].(*TaskEvent)
		if ev.Percent != want {
			t.Errorf("Event %d: expected %v, got %v", i, want, ev.Percent)
		}
	}

	if again := pc.Drain(); len(again) != 0 {
		t.Errorf("Expected empty drain, got %d events", len(again))
	}

	published, delivered := pc.Stats()
	if published != 4 || delivered != 4 {
		t.Errorf("Expected 4/4 published/delivered, got %d/%d", published, delivered)
	}
}

// A full buffer blocks the producer instead of dropping events.
func TestProgressChannel_BlocksWhenFull(t *testing.T) {
	pc := NewProgressChannel(2)
	defer pc.Close()

	ctx := context.Background()
	_ = pc.Publish(ctx, progressEvent("t1", 1))
	_ = pc.Publish(ctx, progressEvent("t1", 2))

	published := make(chan struct{})
	go func() {
		_ = pc.Publish(ctx, progressEvent("t1", 3))
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("Publish should block while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	first := pc.Drain()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("Publish should unblock after a drain")
	}

	rest := pc.Drain()
	all := append(first, rest...)
	if len(all) != 3 {
		t.Fatalf("Expected 3 events in total, got %d", len(all))
	}
	if all[2].(*TaskEvent).Percent != 3 {
		t.Errorf("Expected the blocked event last, got %v", all[2].(*TaskEvent).Percent)
	}
}

func TestProgressChannel_PublishContextCancelled(t *testing.T) {
	pc := NewProgressChannel(1)
	defer pc.Close()

	_ = pc.Publish(context.Background(), progressEvent("t1", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pc.Publish(ctx, progressEvent("t1", 2))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestProgressChannel_CloseReleasesProducers(t *testing.T) {
	pc := NewProgressChannel(1)
	_ = pc.Publish(context.Background(), progressEvent("t1", 1))

	errCh := make(chan error, 1)
	go func() {
		errCh <- pc.Publish(context.Background(), progressEvent("t1", 2))
	}()

	time.Sleep(20 * time.Millisecond)
	pc.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not release the blocked producer")
	}

	// Buffered events survive Close.
	if batch := pc.Drain(); len(batch) != 1 {
		t.Errorf("Expected 1 buffered event after close, got %d", len(batch))
	}

	// Close is idempotent.
	pc.Close()
}

// Events from each producer arrive in publish order even with several producers.
func TestProgressChannel_PerTaskOrdering(t *testing.T) {
	pc := NewProgressChannel(4)
	defer pc.Close()

	ctx := context.Background()
	tasks := []string{"a", "b", "c"}
	const perTask = 50

	var wg sync.WaitGroup
	for _, id := range tasks {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 1; i <= perTask; i++ {
				if err := pc.Publish(ctx, progressEvent(id, float64(i))); err != nil {
					t.Errorf("Publish failed: %v", err)
					return
				}
			}
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	last := make(map[string]float64)
	count := 0
	for count < len(tasks)*perTask {
		for _, ev := range pc.Drain() {
			te := ev.(*TaskEvent)
			if te.Percent <= last[te.TaskID] {
				t.Fatalf("Task %s: event %v arrived after %v", te.TaskID, te.Percent, last[te.TaskID])
			}
			last[te.TaskID] = te.Percent
			count++
		}
		time.Sleep(time.Millisecond)
	}
	<-done
}

func TestProgressChannel_Poll(t *testing.T) {
	pc := NewProgressChannel(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Event
	finished := make(chan struct{})
	go func() {
		pc.Poll(ctx, 5*time.Millisecond, func(batch []Event) {
			got = append(got, batch...)
			for _, ev := range batch {
				if te, ok := ev.(*TaskEvent); ok && te.IsTerminal() {
					cancel()
				}
			}
		})
		close(finished)
	}()

	_ = pc.Publish(context.Background(), progressEvent("t1", 50))
	_ = pc.Publish(context.Background(), NewTaskEvent(EventTaskSucceeded, "t1", "upload", "file.bin"))

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after terminal event")
	}

	if len(got) != 2 {
		t.Errorf("Expected 2 events, got %d", len(got))
	}
}

func TestNewProgressChannel_BufferBounds(t *testing.T) {
	if pc := NewProgressChannel(0); pc.Cap() <= 0 {
		t.Error("Expected default buffer for size 0")
	}
	if pc := NewProgressChannel(1 << 20); pc.Cap() > 4096 {
		t.Errorf("Expected buffer to be capped, got %d", pc.Cap())
	}
}
