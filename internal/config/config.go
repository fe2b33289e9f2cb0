// Package config provides configuration management for driftbox.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/driftbox/driftbox/internal/constants"
)

// Config is the full driftbox configuration.
//
// Config file location: ConfigDir()/config (INI). A path ending in .yaml or
// .yml is read and written as YAML instead.
//
// INI format:
//
//	[metadata]
//	driver = bolt            ; bolt, sqlite, postgres, mysql, mongo, memory
//	dsn = /home/me/.local/share/driftbox/meta.db
//
//	[blob]
//	backend = fs             ; fs, s3, azure, memory
//	root = /home/me/.local/share/driftbox/blobs
//	signing_secret = <hex>
//
//	[transfer]
//	chunk_size_kib = 256
//	url_validity_hours = 168
//
//	[paths]
//	keying = full            ; full or last-segment
//
//	[tree]
//	cascade_delete = false
//
//	[session]
//	secret = <hex>
//
//	[proxy]
//	mode = no-proxy          ; no-proxy, system, basic, ntlm
//
//	[metrics]
//	addr = 127.0.0.1:9464
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Metadata MetadataConfig `yaml:"metadata"`
	Blob     BlobConfig     `yaml:"blob"`
	Transfer TransferConfig `yaml:"transfer"`
	Paths    PathsConfig    `yaml:"paths"`
	Tree     TreeConfig     `yaml:"tree"`
	Session  SessionConfig  `yaml:"session"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// MetadataConfig selects the document store.
type MetadataConfig struct {
	// Driver is one of bolt, sqlite, postgres, mysql, mongo, memory.
	// Default: bolt
	Driver string `yaml:"driver"`

	// DSN is a file path for bolt/sqlite, a connection string for
	// postgres/mysql and a URI for mongo.
	DSN string `yaml:"dsn"`

	// Database is the MongoDB database name.
	Database string `yaml:"database"`

	// ConnectTimeoutSeconds bounds the startup connection retry.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
}

// BlobConfig selects the blob store.
type BlobConfig struct {
	// Backend is one of fs, s3, azure, memory. Default: fs
	Backend string `yaml:"backend"`

	// fs
	Root          string `yaml:"root"`
	SigningSecret string `yaml:"signing_secret"`

	// s3 (and S3-compatible servers such as MinIO)
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`

	// azure
	Account    string `yaml:"account"`
	AccountKey string `yaml:"account_key"`
	Container  string `yaml:"container"`
	ServiceURL string `yaml:"service_url"`
}

// TransferConfig tunes the transfer engine.
type TransferConfig struct {
	ChunkSizeKiB     int `yaml:"chunk_size_kib"`
	URLValidityHours int `yaml:"url_validity_hours"`
	EventBuffer      int `yaml:"event_buffer"`
	PollIntervalMs   int `yaml:"poll_interval_ms"`
	MaxConcurrent    int `yaml:"max_concurrent"`
}

// PathsConfig controls how folder paths map to collections.
type PathsConfig struct {
	// Keying is "full" or "last-segment".
	Keying string `yaml:"keying"`
}

// TreeConfig controls folder tree behaviour.
type TreeConfig struct {
	// CascadeDelete removes descendant records when a folder is deleted.
	CascadeDelete bool `yaml:"cascade_delete"`
}

// SessionConfig controls login tokens.
type SessionConfig struct {
	Secret    string `yaml:"secret"`
	TokenPath string `yaml:"token_path"`
	TTLHours  int    `yaml:"ttl_hours"`
}

// ProxyConfig configures outbound HTTP for the blob backends and downloads.
type ProxyConfig struct {
	// Mode is no-proxy, system, basic or ntlm.
	Mode     string `yaml:"mode"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// NoProxy is a comma separated bypass list (hosts, domains, CIDRs).
	NoProxy string `yaml:"no_proxy"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Validation errors
var (
	ErrUnknownMetadataDriver = errors.New("metadata.driver must be one of bolt, sqlite, postgres, mysql, mongo, memory")
	ErrMissingDSN            = errors.New("metadata.dsn is required for this driver")
	ErrUnknownBlobBackend    = errors.New("blob.backend must be one of fs, s3, azure, memory")
	ErrMissingBlobRoot       = errors.New("blob.root is required for the fs backend")
	ErrMissingSigningSecret  = errors.New("blob.signing_secret is required for the fs backend")
	ErrMissingBucket         = errors.New("blob.bucket is required for the s3 backend")
	ErrMissingAzureAccount   = errors.New("blob.account, blob.account_key and blob.container are required for the azure backend")
	ErrInvalidChunkSize      = errors.New("transfer.chunk_size_kib must be between 1 and 65536")
	ErrInvalidURLValidity    = errors.New("transfer.url_validity_hours must be between 1 and 168")
	ErrInvalidKeying         = errors.New("paths.keying must be full or last-segment")
	ErrMissingSessionSecret  = errors.New("session.secret is required")
	ErrInvalidProxyMode      = errors.New("proxy.mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost      = errors.New("proxy.host is required for basic and ntlm modes")
)

// New returns a Config with default values. Secrets are left empty; see
// EnsureSecrets.
func New() *Config {
	data := DataDir()
	return &Config{
		LogLevel: "info",
		Metadata: MetadataConfig{
			Driver:                "bolt",
			DSN:                   filepath.Join(data, "meta.db"),
			Database:              constants.AppName,
			ConnectTimeoutSeconds: int(constants.StoreConnectTimeout / time.Second),
		},
		Blob: BlobConfig{
			Backend: "fs",
			Root:    filepath.Join(data, "blobs"),
			Region:  "us-east-1",
		},
		Transfer: TransferConfig{
			ChunkSizeKiB:     constants.ChunkSize / 1024,
			URLValidityHours: int(constants.SignedURLValidity / time.Hour),
			EventBuffer:      constants.ProgressBufferSize,
			PollIntervalMs:   int(constants.PollInterval / time.Millisecond),
			MaxConcurrent:    constants.DefaultMaxConcurrent,
		},
		Paths: PathsConfig{Keying: "full"},
		Session: SessionConfig{
			TokenPath: filepath.Join(ConfigDir(), "session"),
			TTLHours:  int(constants.SessionTTL / time.Hour),
		},
		Proxy: ProxyConfig{Mode: "no-proxy", Port: 8080},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the configuration at path (DefaultConfigPath if empty) and
// applies DRIFTBOX_* environment overrides. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := New()
	if path == "" {
		path = DefaultConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.ApplyEnv()
		return cfg, nil
	}

	var err error
	if isYAML(path) {
		err = loadYAML(cfg, path)
	} else {
		err = loadINI(cfg, path)
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	return cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func loadINI(cfg *Config, path string) error {
	iniFile, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.LogLevel = iniFile.Section("").Key("log_level").MustString(cfg.LogLevel)

	meta := iniFile.Section("metadata")
	cfg.Metadata.Driver = meta.Key("driver").MustString(cfg.Metadata.Driver)
	cfg.Metadata.DSN = meta.Key("dsn").MustString(cfg.Metadata.DSN)
	cfg.Metadata.Database = meta.Key("database").MustString(cfg.Metadata.Database)
	cfg.Metadata.ConnectTimeoutSeconds = meta.Key("connect_timeout_seconds").MustInt(cfg.Metadata.ConnectTimeoutSeconds)

	blob := iniFile.Section("blob")
	cfg.Blob.Backend = blob.Key("backend").MustString(cfg.Blob.Backend)
	cfg.Blob.Root = blob.Key("root").MustString(cfg.Blob.Root)
	cfg.Blob.SigningSecret = blob.Key("signing_secret").String()
	cfg.Blob.Bucket = blob.Key("bucket").String()
	cfg.Blob.Region = blob.Key("region").MustString(cfg.Blob.Region)
	cfg.Blob.Endpoint = blob.Key("endpoint").String()
	cfg.Blob.AccessKeyID = blob.Key("access_key_id").String()
	cfg.Blob.SecretAccessKey = blob.Key("secret_access_key").String()
	cfg.Blob.PathStyle = blob.Key("path_style").MustBool(false)
	cfg.Blob.Account = blob.Key("account").String()
	cfg.Blob.AccountKey = blob.Key("account_key").String()
	cfg.Blob.Container = blob.Key("container").String()
	cfg.Blob.ServiceURL = blob.Key("service_url").String()

	transfer := iniFile.Section("transfer")
	cfg.Transfer.ChunkSizeKiB = transfer.Key("chunk_size_kib").MustInt(cfg.Transfer.ChunkSizeKiB)
	cfg.Transfer.URLValidityHours = transfer.Key("url_validity_hours").MustInt(cfg.Transfer.URLValidityHours)
	cfg.Transfer.EventBuffer = transfer.Key("event_buffer").MustInt(cfg.Transfer.EventBuffer)
	cfg.Transfer.PollIntervalMs = transfer.Key("poll_interval_ms").MustInt(cfg.Transfer.PollIntervalMs)
	cfg.Transfer.MaxConcurrent = transfer.Key("max_concurrent").MustInt(cfg.Transfer.MaxConcurrent)

	cfg.Paths.Keying = iniFile.Section("paths").Key("keying").MustString(cfg.Paths.Keying)
	cfg.Tree.CascadeDelete = iniFile.Section("tree").Key("cascade_delete").MustBool(false)

	session := iniFile.Section("session")
	cfg.Session.Secret = session.Key("secret").String()
	cfg.Session.TokenPath = session.Key("token_path").MustString(cfg.Session.TokenPath)
	cfg.Session.TTLHours = session.Key("ttl_hours").MustInt(cfg.Session.TTLHours)

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = proxy.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(cfg.Proxy.Port)
	cfg.Proxy.User = proxy.Key("user").String()
	// Password is deliberately not read from disk; see Save.
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()

	cfg.Metrics.Addr = iniFile.Section("metrics").Key("addr").String()
	return nil
}

// ApplyEnv overrides fields from DRIFTBOX_* environment variables.
func (cfg *Config) ApplyEnv() {
	strs := map[string]*string{
		"LOG_LEVEL":              &cfg.LogLevel,
		"METADATA_DRIVER":        &cfg.Metadata.Driver,
		"METADATA_DSN":           &cfg.Metadata.DSN,
		"METADATA_DATABASE":      &cfg.Metadata.Database,
		"BLOB_BACKEND":           &cfg.Blob.Backend,
		"BLOB_ROOT":              &cfg.Blob.Root,
		"BLOB_SIGNING_SECRET":    &cfg.Blob.SigningSecret,
		"BLOB_BUCKET":            &cfg.Blob.Bucket,
		"BLOB_REGION":            &cfg.Blob.Region,
		"BLOB_ENDPOINT":          &cfg.Blob.Endpoint,
		"BLOB_ACCESS_KEY_ID":     &cfg.Blob.AccessKeyID,
		"BLOB_SECRET_ACCESS_KEY": &cfg.Blob.SecretAccessKey,
		"BLOB_ACCOUNT":           &cfg.Blob.Account,
		"BLOB_ACCOUNT_KEY":       &cfg.Blob.AccountKey,
		"BLOB_CONTAINER":         &cfg.Blob.Container,
		"PATHS_KEYING":           &cfg.Paths.Keying,
		"SESSION_SECRET":         &cfg.Session.Secret,
		"SESSION_TOKEN_PATH":     &cfg.Session.TokenPath,
		"PROXY_MODE":             &cfg.Proxy.Mode,
		"PROXY_HOST":             &cfg.Proxy.Host,
		"PROXY_USER":             &cfg.Proxy.User,
		"PROXY_PASSWORD":         &cfg.Proxy.Password,
		"METRICS_ADDR":           &cfg.Metrics.Addr,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(constants.EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"TRANSFER_CHUNK_SIZE_KIB": &cfg.Transfer.ChunkSizeKiB,
		"TRANSFER_MAX_CONCURRENT": &cfg.Transfer.MaxConcurrent,
		"PROXY_PORT":              &cfg.Proxy.Port,
	}
	for name, dst := range ints {
		if v, ok := os.LookupEnv(constants.EnvPrefix + name); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	if v, ok := os.LookupEnv(constants.EnvPrefix + "TREE_CASCADE_DELETE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tree.CascadeDelete = b
		}
	}
}

// EnsureSecrets fills in missing session and fs signing secrets with random
// values. It reports whether anything changed so the caller can Save.
func (cfg *Config) EnsureSecrets() (bool, error) {
	changed := false
	if cfg.Session.Secret == "" {
		s, err := randomSecret()
		if err != nil {
			return false, err
		}
		cfg.Session.Secret = s
		changed = true
	}
	if cfg.Blob.Backend == "fs" && cfg.Blob.SigningSecret == "" {
		s, err := randomSecret()
		if err != nil {
			return false, err
		}
		cfg.Blob.SigningSecret = s
		changed = true
	}
	return changed, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Save writes cfg to path (DefaultConfigPath if empty). The proxy password
// is never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	var err error
	if isYAML(path) {
		err = saveYAML(cfg, tmpPath)
	} else {
		err = saveINI(cfg, tmpPath)
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Secrets live in this file
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func saveYAML(cfg *Config, path string) error {
	out := *cfg
	out.Proxy.Password = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func saveINI(cfg *Config, path string) error {
	iniFile := ini.Empty()

	iniFile.Section("").Key("log_level").SetValue(cfg.LogLevel)

	sections := []struct {
		name string
		keys [][2]string
	}{
		{"metadata", [][2]string{
			{"driver", cfg.Metadata.Driver},
			{"dsn", cfg.Metadata.DSN},
			{"database", cfg.Metadata.Database},
			{"connect_timeout_seconds", strconv.Itoa(cfg.Metadata.ConnectTimeoutSeconds)},
		}},
		{"blob", [][2]string{
			{"backend", cfg.Blob.Backend},
			{"root", cfg.Blob.Root},
			{"signing_secret", cfg.Blob.SigningSecret},
			{"bucket", cfg.Blob.Bucket},
			{"region", cfg.Blob.Region},
			{"endpoint", cfg.Blob.Endpoint},
			{"access_key_id", cfg.Blob.AccessKeyID},
			{"secret_access_key", cfg.Blob.SecretAccessKey},
			{"path_style", strconv.FormatBool(cfg.Blob.PathStyle)},
			{"account", cfg.Blob.Account},
			{"account_key", cfg.Blob.AccountKey},
			{"container", cfg.Blob.Container},
			{"service_url", cfg.Blob.ServiceURL},
		}},
		{"transfer", [][2]string{
			{"chunk_size_kib", strconv.Itoa(cfg.Transfer.ChunkSizeKiB)},
			{"url_validity_hours", strconv.Itoa(cfg.Transfer.URLValidityHours)},
			{"event_buffer", strconv.Itoa(cfg.Transfer.EventBuffer)},
			{"poll_interval_ms", strconv.Itoa(cfg.Transfer.PollIntervalMs)},
			{"max_concurrent", strconv.Itoa(cfg.Transfer.MaxConcurrent)},
		}},
		{"paths", [][2]string{{"keying", cfg.Paths.Keying}}},
		{"tree", [][2]string{{"cascade_delete", strconv.FormatBool(cfg.Tree.CascadeDelete)}}},
		{"session", [][2]string{
			{"secret", cfg.Session.Secret},
			{"token_path", cfg.Session.TokenPath},
			{"ttl_hours", strconv.Itoa(cfg.Session.TTLHours)},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.Proxy.Mode},
			{"host", cfg.Proxy.Host},
			{"port", strconv.Itoa(cfg.Proxy.Port)},
			{"user", cfg.Proxy.User},
			{"no_proxy", cfg.Proxy.NoProxy},
		}},
		{"metrics", [][2]string{{"addr", cfg.Metrics.Addr}}},
	}

	for _, s := range sections {
		sec, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			sec.Key(kv[0]).SetValue(kv[1])
		}
	}

	if err := iniFile.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for the selected backends.
func (cfg *Config) Validate() error {
	switch cfg.Metadata.Driver {
	case "memory":
	case "bolt", "sqlite", "postgres", "mysql", "mongo":
		if strings.TrimSpace(cfg.Metadata.DSN) == "" {
			return ErrMissingDSN
		}
	default:
		return ErrUnknownMetadataDriver
	}

	switch cfg.Blob.Backend {
	case "memory":
	case "fs":
		if strings.TrimSpace(cfg.Blob.Root) == "" {
			return ErrMissingBlobRoot
		}
		if cfg.Blob.SigningSecret == "" {
			return ErrMissingSigningSecret
		}
	case "s3":
		if strings.TrimSpace(cfg.Blob.Bucket) == "" {
			return ErrMissingBucket
		}
	case "azure":
		if cfg.Blob.Account == "" || cfg.Blob.AccountKey == "" || cfg.Blob.Container == "" {
			return ErrMissingAzureAccount
		}
	default:
		return ErrUnknownBlobBackend
	}

	if cfg.Transfer.ChunkSizeKiB < 1 || cfg.Transfer.ChunkSizeKiB > constants.MaxChunkSizeKiB {
		return ErrInvalidChunkSize
	}
	if cfg.Transfer.URLValidityHours < 1 || cfg.Transfer.URLValidityHours > int(constants.SignedURLValidity/time.Hour) {
		return ErrInvalidURLValidity
	}

	switch cfg.Paths.Keying {
	case "full", "last-segment":
	default:
		return ErrInvalidKeying
	}

	if cfg.Session.Secret == "" {
		return ErrMissingSessionSecret
	}

	switch strings.ToLower(cfg.Proxy.Mode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if cfg.Proxy.Host == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	return nil
}

// ChunkSize returns the configured chunk size in bytes.
func (cfg *Config) ChunkSize() int {
	return cfg.Transfer.ChunkSizeKiB * 1024
}

// URLValidity returns the configured signed URL lifetime.
func (cfg *Config) URLValidity() time.Duration {
	return time.Duration(cfg.Transfer.URLValidityHours) * time.Hour
}

// PollInterval returns how often the interactive side drains progress events.
func (cfg *Config) PollInterval() time.Duration {
	if cfg.Transfer.PollIntervalMs <= 0 {
		return constants.PollInterval
	}
	return time.Duration(cfg.Transfer.PollIntervalMs) * time.Millisecond
}

// SessionTTL returns the login token lifetime.
func (cfg *Config) SessionTTL() time.Duration {
	if cfg.Session.TTLHours <= 0 {
		return constants.SessionTTL
	}
	return time.Duration(cfg.Session.TTLHours) * time.Hour
}

// NeedsProxyPassword reports whether a proxy user is configured without a
// password, so the CLI should prompt for one.
func (p ProxyConfig) NeedsProxyPassword() bool {
	mode := strings.ToLower(p.Mode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return p.User != "" && p.Password == ""
}
