package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/driftbox/driftbox/internal/auth"
	"github.com/driftbox/driftbox/internal/config"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/models"
	"github.com/driftbox/driftbox/internal/transfer"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New()
	cfg.Metadata.Driver = "memory"
	cfg.Blob.Backend = "memory"
	cfg.Session.Secret = "0123456789abcdef"
	cfg.Session.TokenPath = filepath.Join(t.TempDir(), "session")
	return cfg
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Session.Secret = ""

	if _, err := Open(context.Background(), cfg, nil); !errors.Is(err, config.ErrMissingSessionSecret) {
		t.Errorf("Expected ErrMissingSessionSecret, got %v", err)
	}
}

func TestOpenMetadata_Bolt(t *testing.T) {
	cfg := config.MetadataConfig{Driver: "bolt", DSN: filepath.Join(t.TempDir(), "meta.db")}

	store, err := OpenMetadata(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenMetadata failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(cfg.DSN); err != nil {
		t.Errorf("Bolt file should exist: %v", err)
	}
}

func TestOpenBlob_FSNeedsSecret(t *testing.T) {
	cfg := config.BlobConfig{Backend: "fs", Root: t.TempDir()}

	if _, err := OpenBlob(context.Background(), cfg, nil, nil); !errors.Is(err, config.ErrMissingSigningSecret) {
		t.Errorf("Expected ErrMissingSigningSecret, got %v", err)
	}

	cfg.SigningSecret = "deadbeef"
	if _, err := OpenBlob(context.Background(), cfg, nil, nil); err != nil {
		t.Errorf("OpenBlob failed: %v", err)
	}
}

func TestDecodeSecret(t *testing.T) {
	b, err := decodeSecret("deadbeef")
	if err != nil || len(b) != 4 {
		t.Errorf("Hex secret should decode to 4 bytes, got %d, %v", len(b), err)
	}
	b, err = decodeSecret("not hex!")
	if err != nil || string(b) != "not hex!" {
		t.Errorf("Non-hex secret should be used raw, got %q, %v", b, err)
	}
}

func TestResume_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)

	app, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer app.Close()

	if _, err := app.Resume(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Expected ErrNoSession, got %v", err)
	}

	if _, err := app.Auth.Register(ctx, "alice", "secret1", "secret1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	login, err := app.Auth.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := auth.SaveToken(cfg.Session.TokenPath, login.Token); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	sess, err := app.Resume()
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	defer sess.Close()

	if sess.Paths.Owner() != "alice" || login.Owner != "alice" {
		t.Errorf("Owner = %s/%s, want the username", sess.Paths.Owner(), login.Owner)
	}

	if _, err := sess.Controller.CreateFolder(ctx, models.Root(), "docs"); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	// Trees are partitioned by username.
	ref := metadata.Collection("folders", "alice", "user_folders").Doc("docs")
	if ok, err := app.Store.Exists(ctx, ref); err != nil || !ok {
		t.Errorf("Expected folder record at %s, exists=%v err=%v", ref, ok, err)
	}
	if _, err := sess.Controller.CreateFolder(ctx, models.Root(), "docs"); !errors.Is(err, transfer.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}

	items, err := sess.Controller.List(ctx, models.Root())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 || items[0].Name() != "docs" {
		t.Errorf("Unexpected listing %+v", items)
	}
}
