// Package core wires configuration into running components: the metadata
// and blob backends, the session service, and per-user controllers.
package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/driftbox/driftbox/internal/auth"
	"github.com/driftbox/driftbox/internal/blob"
	"github.com/driftbox/driftbox/internal/blob/azurestore"
	"github.com/driftbox/driftbox/internal/blob/fsstore"
	"github.com/driftbox/driftbox/internal/blob/s3store"
	"github.com/driftbox/driftbox/internal/config"
	"github.com/driftbox/driftbox/internal/events"
	"github.com/driftbox/driftbox/internal/fetch"
	"github.com/driftbox/driftbox/internal/http"
	"github.com/driftbox/driftbox/internal/logging"
	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/metadata/boltstore"
	"github.com/driftbox/driftbox/internal/metadata/mongostore"
	"github.com/driftbox/driftbox/internal/metadata/sqlstore"
	"github.com/driftbox/driftbox/internal/pathresolve"
	"github.com/driftbox/driftbox/internal/transfer"
	"github.com/driftbox/driftbox/internal/tree"
)

// App holds the shared components for one process.
type App struct {
	Config *config.Config
	Store  metadata.Store
	Blobs  blob.Store
	Auth   *auth.Service

	httpClient *nethttp.Client
	logger     *logging.Logger
}

// Open validates cfg and connects every backend it names.
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	hc, err := http.CreateOptimizedClient(&cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	store, err := OpenMetadata(ctx, cfg.Metadata, logger)
	if err != nil {
		return nil, err
	}

	blobs, err := OpenBlob(ctx, cfg.Blob, hc, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	svc, err := auth.NewService(store, []byte(cfg.Session.Secret), cfg.SessionTTL(), logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Debug().
		Str("metadata", cfg.Metadata.Driver).
		Str("blob", cfg.Blob.Backend).
		Msg("Backends ready")

	return &App{
		Config:     cfg,
		Store:      store,
		Blobs:      blobs,
		Auth:       svc,
		httpClient: hc,
		logger:     logger,
	}, nil
}

// OpenMetadata connects the configured document store, wrapped with
// metrics instrumentation.
func OpenMetadata(ctx context.Context, cfg config.MetadataConfig, logger *logging.Logger) (metadata.Store, error) {
	timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second

	var (
		store metadata.Store
		err   error
	)
	switch cfg.Driver {
	case "memory":
		store = metadata.NewMemoryStore()
	case "bolt":
		store, err = boltstore.Open(cfg.DSN)
	case "sqlite", "postgres", "mysql":
		dialect, derr := sqlstore.ParseDialect(cfg.Driver)
		if derr != nil {
			return nil, derr
		}
		store, err = sqlstore.Open(ctx, sqlstore.Options{
			Dialect:        dialect,
			DSN:            cfg.DSN,
			ConnectTimeout: timeout,
			Logger:         logger,
		})
	case "mongo":
		store, err = mongostore.Open(ctx, mongostore.Options{
			URI:            cfg.DSN,
			Database:       cfg.Database,
			ConnectTimeout: timeout,
			Logger:         logger,
		})
	default:
		return nil, config.ErrUnknownMetadataDriver
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s metadata store: %w", cfg.Driver, err)
	}
	return metadata.Instrument(store), nil
}

// OpenBlob connects the configured blob backend, wrapped with metrics
// instrumentation.
func OpenBlob(ctx context.Context, cfg config.BlobConfig, hc *nethttp.Client, logger *logging.Logger) (blob.Store, error) {
	var (
		store blob.Store
		err   error
	)
	switch cfg.Backend {
	case "memory":
		store = blob.NewMemoryStore()
	case "fs":
		secret, derr := decodeSecret(cfg.SigningSecret)
		if derr != nil {
			return nil, derr
		}
		store, err = fsstore.New(cfg.Root, secret)
	case "s3":
		store, err = s3store.New(ctx, s3store.Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			PathStyle:       cfg.PathStyle,
			HTTPClient:      hc,
			Logger:          logger,
		})
	case "azure":
		store, err = azurestore.New(azurestore.Options{
			Account:    cfg.Account,
			AccountKey: cfg.AccountKey,
			Container:  cfg.Container,
			ServiceURL: cfg.ServiceURL,
			HTTPClient: hc,
			Logger:     logger,
		})
	default:
		return nil, config.ErrUnknownBlobBackend
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s blob store: %w", cfg.Backend, err)
	}
	return blob.Instrument(store), nil
}

// decodeSecret accepts the hex secrets EnsureSecrets generates and falls back
// to the raw bytes for hand-written ones.
func decodeSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, config.ErrMissingSigningSecret
	}
	if b, err := hex.DecodeString(s); err == nil && len(b) > 0 {
		return b, nil
	}
	return []byte(s), nil
}

// Session is everything one logged-in user works with.
type Session struct {
	User       *auth.Session
	Paths      *pathresolve.Resolver
	Engine     *transfer.Engine
	Controller *tree.Controller
	Fetcher    *fetch.Fetcher
	Progress   *events.ProgressChannel
}

// Close releases workers blocked on a full progress channel and waits for
// them to return. Events not drained before Close are lost.
func (s *Session) Close() {
	s.Progress.Close()
	s.Engine.Wait()
}

// ErrNoSession is returned by Resume when nobody is logged in.
var ErrNoSession = errors.New("not logged in; run 'driftbox login' first")

// Resume verifies the stored token and builds the user's session.
func (a *App) Resume() (*Session, error) {
	user, err := a.Auth.Resume(a.Config.Session.TokenPath)
	if errors.Is(err, auth.ErrNotLoggedIn) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	return a.NewSession(user)
}

// NewSession builds the per-owner components for user.
func (a *App) NewSession(user *auth.Session) (*Session, error) {
	keying, err := pathresolve.ParseKeying(a.Config.Paths.Keying)
	if err != nil {
		return nil, err
	}
	paths := pathresolve.New(user.Owner, keying)
	progress := events.NewProgressChannel(a.Config.Transfer.EventBuffer)

	engine := transfer.New(a.Store, a.Blobs, paths, progress, transfer.Options{
		ChunkSize:     a.Config.ChunkSize(),
		URLValidity:   a.Config.URLValidity(),
		MaxConcurrent: a.Config.Transfer.MaxConcurrent,
		CascadeDelete: a.Config.Tree.CascadeDelete,
		Logger:        a.logger,
	})

	return &Session{
		User:       user,
		Paths:      paths,
		Engine:     engine,
		Controller: tree.New(a.Store, paths, engine, a.logger),
		Fetcher:    fetch.New(a.Store, a.Blobs, paths, a.httpClient, a.Config.URLValidity(), a.logger),
		Progress:   progress,
	}, nil
}

// Close releases the metadata store.
func (a *App) Close() error {
	return a.Store.Close()
}
