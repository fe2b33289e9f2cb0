package tree

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/events"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/pathresolve"
	"github.com/driftbox/driftbox/internal/transfer"
)

func newController(t *testing.T) (*Controller, *metadata.MemoryStore) {
	t.Helper()
	store := metadata.NewMemoryStore()
	paths := pathresolve.New("alice", pathresolve.KeyingFull)
	ch := events.NewProgressChannel(256)
	t.Cleanup(ch.Close)
	eng := transfer.New(store, blob.NewMemoryStore(), paths, ch, transfer.Options{})
	return New(store, paths, eng, nil), store
}

func localFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// pumpAll waits for every task and pumps the channel once.
func pumpAll(c *Controller) []*events.TaskEvent {
	c.Engine().Wait()
	var got []*events.TaskEvent
	c.Pump(func(evs []*events.TaskEvent) { got = append(got, evs...) })
	return got
}

func names(items []models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Kind.String() + ":" + it.Name()
	}
	return out
}

func TestList_FoldersBeforeFiles(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	if _, err := c.Track(ctx, localFile(t, "z.txt", "z"), models.Root(), ""); err != nil {
		t.Fatal(err)
	}
	for _, n := range []string{"b", "a"} {
		if _, err := c.CreateFolder(ctx, models.Root(), n); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := c.Track(ctx, localFile(t, "m.txt", "m"), models.Root(), ""); err != nil {
		t.Fatal(err)
	}

	items, err := c.List(ctx, models.Root())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	got := names(items)
	want := []string{"folder:b", "folder:a", "file:z.txt", "file:m.txt"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List = %v, want %v", got, want)
			break
		}
	}

	sorted := names(SortedByName(items))
	wantSorted := []string{"folder:a", "folder:b", "file:m.txt", "file:z.txt"}
	for i := range wantSorted {
		if sorted[i] != wantSorted[i] {
			t.Errorf("SortedByName = %v, want %v", sorted, wantSorted)
			break
		}
	}
	if names(items)[0] != "folder:b" {
		t.Error("SortedByName must not reorder its input")
	}
}

func TestList_IsReadOnly(t *testing.T) {
	c, store := newController(t)
	if _, err := c.List(context.Background(), models.Path{"nowhere"}); err != nil {
		t.Fatalf("Listing an empty folder should succeed: %v", err)
	}
	if store.Writes() != 0 {
		t.Error("List must not write")
	}
}

func TestCreateFolder(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	f, err := c.CreateFolder(ctx, models.Root(), "docs")
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if f.CreatedAt.IsZero() || !f.Path().Equal(models.Path{"docs"}) {
		t.Errorf("Unexpected folder %+v", f)
	}

	if _, err := c.CreateFolder(ctx, models.Root(), "docs"); !errors.Is(err, transfer.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
	if _, err := c.CreateFolder(ctx, models.Root(), ""); err == nil {
		t.Error("Expected empty name to be rejected")
	}
	if _, err := c.CreateFolder(ctx, models.Path{"docs"}, "docs"); err != nil {
		t.Errorf("Same name in a different folder should be allowed: %v", err)
	}
}

func TestNavigation(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()
	c.CreateFolder(ctx, models.Root(), "a")
	c.CreateFolder(ctx, models.Path{"a"}, "b")

	if c.Back() {
		t.Error("Back at root should report false")
	}
	if _, err := c.OpenFolder(ctx, "missing"); !errors.Is(err, ErrNotFolder) {
		t.Errorf("Expected ErrNotFolder, got %v", err)
	}

	c.Select(models.Ref{Parent: models.Root(), Name: "a", Kind: models.KindFolder})
	if _, err := c.OpenFolder(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Selected(); ok {
		t.Error("Opening a folder should clear the selection")
	}
	if _, err := c.OpenFolder(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if c.Breadcrumb() != "Home > a > b" {
		t.Errorf("Unexpected breadcrumb %q", c.Breadcrumb())
	}

	if !c.Back() || !c.Current().Equal(models.Path{"a"}) {
		t.Errorf("Back should return to /a, at %s", c.Current())
	}
	c.Home()
	if !c.Current().IsRoot() {
		t.Error("Home should return to root")
	}
}

func TestPump_AcknowledgesFinishedTasks(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	task, err := c.Upload(ctx, localFile(t, "up.txt", "data"), models.Root(), "", nil)
	if err != nil {
		t.Fatal(err)
	}

	var sawInQueue bool
	c.Engine().Wait()
	c.Pump(func(evs []*events.TaskEvent) {
		snap, ok := c.Engine().Queue().GetTask(task.ID)
		sawInQueue = ok && snap.State == transfer.TaskSucceeded
	})
	if !sawInQueue {
		t.Error("Handler should see the finished task before it is acknowledged")
	}
	if len(c.Tasks()) != 0 {
		t.Errorf("Finished task should be acknowledged, %d left", len(c.Tasks()))
	}

	items, _ := c.List(ctx, models.Root())
	if len(items) != 1 || !items[0].File.Synced {
		t.Errorf("Upload not visible after pump: %v", names(items))
	}
}

func TestControllerDispatch(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()
	c.CreateFolder(ctx, models.Root(), "dst")

	if _, err := c.Upload(ctx, localFile(t, "f.txt", "f"), models.Root(), "", nil); err != nil {
		t.Fatal(err)
	}
	pumpAll(c)

	if _, err := c.Move(ctx, models.Root(), "f.txt", "dst"); err != nil {
		t.Fatal(err)
	}
	pumpAll(c)
	if _, err := c.File(ctx, models.Path{"dst"}, "f.txt"); err != nil {
		t.Fatalf("Moved file missing: %v", err)
	}

	if _, err := c.Rename(ctx, models.Path{"dst"}, "f.txt", models.KindFile, "g.txt"); err != nil {
		t.Fatal(err)
	}
	pumpAll(c)

	if _, err := c.Delete(ctx, models.Path{"dst"}, "g.txt", models.KindFile); err != nil {
		t.Fatal(err)
	}
	evs := pumpAll(c)
	if len(evs) == 0 || evs[len(evs)-1].EventType != events.EventTaskSucceeded {
		t.Error("Delete should finish with Succeeded")
	}

	items, _ := c.List(ctx, models.Path{"dst"})
	if len(items) != 0 {
		t.Errorf("Expected empty folder, got %v", names(items))
	}
}
