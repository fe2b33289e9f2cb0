package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAbsolutePath_Existing(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveAbsolutePath(file)
	if err != nil || got != file {
		t.Errorf("ResolveAbsolutePath = %q, %v; want %q", got, err, file)
	}
}

func TestResolveAbsolutePath_MissingTail(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "new", "out.bin")

	got, err := ResolveAbsolutePath(want)
	if err != nil || got != want {
		t.Errorf("ResolveAbsolutePath = %q, %v; want %q", got, err, want)
	}
}

func TestResolveAbsolutePath_Symlink(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	real := filepath.Join(dir, "real")
	if err := os.Mkdir(real, 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := ResolveAbsolutePath(filepath.Join(link, "missing.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(real, "missing.txt"); got != want {
		t.Errorf("ResolveAbsolutePath = %q, want %q", got, want)
	}
}

func TestResolveAbsolutePath_Home(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ResolveAbsolutePath("~")
	if err != nil {
		t.Fatal(err)
	}
	resolvedHome, _ := filepath.EvalSymlinks(home)
	if got != home && got != resolvedHome {
		t.Errorf("ResolveAbsolutePath(~) = %q, want %q", got, home)
	}
}
