package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/paths"
)

// Defaults for fields the config file leaves out.
const (
	DefaultHost           = "https://download.cuberite.org/androidbinaries/"
	DefaultRetries        = 1
	DefaultChunkSize      = 4096
	DefaultCopyBuffer     = 8192
	DefaultConnectTimeout = 10 * time.Second
	DefaultTimeout        = 5 * time.Minute
	DefaultExecutable     = "Cuberite"
	DefaultMinStartup     = 100 * time.Millisecond
	DefaultCommandBuffer  = 16
	DefaultLogLevel       = "info"

	// NoOutputBuffering makes the server flush every console line.
	NoOutputBuffering = "--no-output-buffering"
)

// Config is the complete cubekeeper configuration.
type Config struct {
	// InstallRoot receives the server executable.
	InstallRoot string
	// ServerDir receives the server data archive and is the working
	// directory of every run.
	ServerDir string
	// CacheDir holds downloaded archives until they are extracted.
	CacheDir string
	// Keyring is an optional OpenPGP keyring used to check detached
	// signatures next to each artifact.
	Keyring string

	Download Download
	Server   Server
	Log      Log
	Metrics  Metrics
}

// Download configures artifact retrieval.
type Download struct {
	Host           string
	Retries        int
	ChunkSize      int
	CopyBuffer     int
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

// Server configures how the server is launched.
type Server struct {
	Executable    string
	Args          []string
	MinStartup    time.Duration
	CommandBuffer int
	Autostart     bool
}

type Log struct {
	Level string
	// File is a log file path; empty or "console" logs to stderr.
	File string
}

type Metrics struct {
	// Listen is the host:port of the metrics endpoint; empty disables it.
	Listen string
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		InstallRoot: paths.DataDir(),
		ServerDir:   paths.ServerDir(),
		CacheDir:    paths.CacheDir(),
		Download: Download{
			Host:           DefaultHost,
			Retries:        DefaultRetries,
			ChunkSize:      DefaultChunkSize,
			CopyBuffer:     DefaultCopyBuffer,
			ConnectTimeout: DefaultConnectTimeout,
			Timeout:        DefaultTimeout,
		},
		Server: Server{
			Executable:    DefaultExecutable,
			Args:          []string{NoOutputBuffering},
			MinStartup:    DefaultMinStartup,
			CommandBuffer: DefaultCommandBuffer,
		},
		Log: Log{Level: DefaultLogLevel},
	}
}

// ExecutablePath returns the server executable, resolved against
// InstallRoot unless it is absolute.
func (c *Config) ExecutablePath() string {
	if filepath.IsAbs(c.Server.Executable) {
		return c.Server.Executable
	}
	return filepath.Join(c.InstallRoot, c.Server.Executable)
}

// Validate checks every field and expands a leading ~ in directory paths.
func (c *Config) Validate() error {
	for _, d := range []struct {
		field string
		path  *string
	}{
		{luaFieldInstallRoot, &c.InstallRoot},
		{luaFieldServerDir, &c.ServerDir},
		{luaFieldCacheDir, &c.CacheDir},
		{luaFieldKeyring, &c.Keyring},
	} {
		if *d.path == "" {
			if d.field == luaFieldKeyring {
				continue
			}
			return &ValidationError{Field: d.field, Message: "path cannot be empty"}
		}
		expanded, err := validatePath(*d.path)
		if err != nil {
			return &ValidationError{Field: d.field, Message: err.Error()}
		}
		*d.path = expanded
	}

	if err := validateHost(c.Download.Host); err != nil {
		return &ValidationError{Field: "download.host", Message: err.Error()}
	}
	if c.Download.Retries < 0 || c.Download.Retries > MaxRetries {
		return &ValidationError{
			Field:   "download.retries",
			Message: fmt.Sprintf("must be between 0 and %d, got %d", MaxRetries, c.Download.Retries),
		}
	}
	for _, b := range []struct {
		field string
		size  int
	}{
		{"download.chunk_size", c.Download.ChunkSize},
		{"download.copy_buffer", c.Download.CopyBuffer},
	} {
		if b.size <= 0 || b.size > MaxBufferSize {
			return &ValidationError{Field: b.field, Message: fmt.Sprintf("must be between 1 and %d bytes, got %d", MaxBufferSize, b.size)}
		}
	}
	if c.Download.ConnectTimeout <= 0 {
		return &ValidationError{Field: "download.connect_timeout", Message: "must be positive"}
	}
	if c.Download.Timeout <= 0 {
		return &ValidationError{Field: "download.timeout", Message: "must be positive"}
	}

	if strings.TrimSpace(c.Server.Executable) == "" {
		return &ValidationError{Field: "server.executable", Message: "cannot be empty"}
	}
	if len(c.Server.Args) > MaxArgs {
		return &ValidationError{Field: "server.args", Message: fmt.Sprintf("too many arguments (%d), maximum is %d", len(c.Server.Args), MaxArgs)}
	}
	if c.Server.MinStartup <= 0 {
		return &ValidationError{Field: "server.min_startup_ms", Message: "must be positive"}
	}
	if c.Server.CommandBuffer <= 0 {
		return &ValidationError{Field: "server.command_buffer", Message: "must be positive"}
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Field: "log.level", Message: err.Error()}
	}
	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return &ValidationError{Field: "metrics.listen", Message: err.Error()}
		}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// validatePath expands ~ and rejects relative paths and traversal.
func validatePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand ~: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("path %q must not contain ..", path)
		}
	}
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path %q must be absolute", path)
	}
	return filepath.Clean(path), nil
}

func validateHost(host string) error {
	u, err := url.Parse(host)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL must use http or https, got %q", host)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", host)
	}
	return nil
}
