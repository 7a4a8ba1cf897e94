package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/paths"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	logger   logging.Logger
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, logger: logging.Noop()}
}

// WithLogger sets the logger used for parse diagnostics.
func (p *Parser) WithLogger(logger logging.Logger) *Parser {
	p.logger = logging.OrNoop(logger)
	return p
}

// Load parses the config file at path. A missing file yields the defaults.
func (p *Parser) Load(ctx context.Context, path string) (*Config, error) {
	cfg, err := p.ParseFile(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		p.logger.Debug("no config file, using defaults", "path", path)
		cfg = Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return cfg, err
}

// ParseFile parses the config file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxConfigSize),
		}
	}

	p.logger.Debug("parsing config", "path", path, "size", len(data))
	return p.ParseString(ctx, string(data))
}

// ParseString parses a Lua config from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	L.SetContext(ctx)
	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctxErr.Error()}
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig reads the global "cubekeeper" table over the defaults.
func extractConfig(L *lua.LState) (*Config, error) {
	root := L.GetGlobal(luaGlobalRoot)
	if root.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: "missing or invalid '" + luaGlobalRoot + "' table",
			Detail:  fmt.Sprintf("expected table, got %s", root.Type()),
		}
	}
	table := root.(*lua.LTable)
	cfg := Default()
	r := &reader{}

	installRootSet := r.str(table, luaFieldInstallRoot, "", &cfg.InstallRoot)
	serverDirSet := r.str(table, luaFieldServerDir, "", &cfg.ServerDir)
	r.str(table, luaFieldCacheDir, "", &cfg.CacheDir)
	r.str(table, luaFieldKeyring, "", &cfg.Keyring)

	// A relocated install root carries the server directory with it.
	if installRootSet && !serverDirSet {
		cfg.ServerDir = filepath.Join(cfg.InstallRoot, paths.ServerDirName)
	}

	if dl := r.table(table, luaFieldDownload, ""); dl != nil {
		const p = luaFieldDownload + "."
		r.str(dl, luaFieldHost, p, &cfg.Download.Host)
		r.integer(dl, luaFieldRetries, p, &cfg.Download.Retries)
		r.integer(dl, luaFieldChunkSize, p, &cfg.Download.ChunkSize)
		r.integer(dl, luaFieldCopyBuffer, p, &cfg.Download.CopyBuffer)
		r.duration(dl, luaFieldConnectTimeout, p, time.Second, &cfg.Download.ConnectTimeout)
		r.duration(dl, luaFieldTimeout, p, time.Second, &cfg.Download.Timeout)
	}

	if srv := r.table(table, luaFieldServer, ""); srv != nil {
		const p = luaFieldServer + "."
		r.str(srv, luaFieldExecutable, p, &cfg.Server.Executable)
		r.stringList(srv, luaFieldArgs, p, &cfg.Server.Args)
		r.duration(srv, luaFieldMinStartupMS, p, time.Millisecond, &cfg.Server.MinStartup)
		r.integer(srv, luaFieldCommandBuffer, p, &cfg.Server.CommandBuffer)
		r.boolean(srv, luaFieldAutostart, p, &cfg.Server.Autostart)
	}

	if lg := r.table(table, luaFieldLog, ""); lg != nil {
		const p = luaFieldLog + "."
		r.str(lg, luaFieldLevel, p, &cfg.Log.Level)
		r.str(lg, luaFieldFile, p, &cfg.Log.File)
	}

	if m := r.table(table, luaFieldMetrics, ""); m != nil {
		r.str(m, luaFieldListen, luaFieldMetrics+".", &cfg.Metrics.Listen)
	}

	if r.err != nil {
		return nil, &ParseError{Message: "config validation failed", Detail: r.err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}

	return cfg, nil
}

// reader extracts typed fields and keeps the first type error.
type reader struct {
	err error
}

func (r *reader) fail(prefix, field, want string, got lua.LValue) {
	if r.err == nil {
		r.err = &ValidationError{Field: prefix + field, Message: fmt.Sprintf("expected %s, got %s", want, got.Type())}
	}
}

func (r *reader) table(t *lua.LTable, field, prefix string) *lua.LTable {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return nil
	case lua.LTTable:
		return v.(*lua.LTable)
	default:
		r.fail(prefix, field, "table", v)
		return nil
	}
}

func (r *reader) str(t *lua.LTable, field, prefix string, dst *string) bool {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return false
	case lua.LTString:
		*dst = v.String()
		return true
	default:
		r.fail(prefix, field, "string", v)
		return false
	}
}

func (r *reader) integer(t *lua.LTable, field, prefix string, dst *int) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTNumber:
		n := float64(lua.LVAsNumber(v))
		if n != float64(int(n)) {
			r.fail(prefix, field, "integer", v)
			return
		}
		*dst = int(n)
	default:
		r.fail(prefix, field, "number", v)
	}
}

func (r *reader) duration(t *lua.LTable, field, prefix string, unit time.Duration, dst *time.Duration) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTNumber:
		*dst = time.Duration(float64(lua.LVAsNumber(v)) * float64(unit))
	default:
		r.fail(prefix, field, "number", v)
	}
}

func (r *reader) boolean(t *lua.LTable, field, prefix string, dst *bool) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
	case lua.LTBool:
		*dst = bool(v.(lua.LBool))
	default:
		r.fail(prefix, field, "boolean", v)
	}
}

// stringList reads an array of strings. Nil holes from platform conditionals
// are skipped.
func (r *reader) stringList(t *lua.LTable, field, prefix string, dst *[]string) {
	v := t.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return
	case lua.LTTable:
	default:
		r.fail(prefix, field, "array of strings", v)
		return
	}
	arr := v.(*lua.LTable)
	out := []string{}
	for i := 1; i <= arr.MaxN(); i++ {
		item := arr.RawGetInt(i)
		switch item.Type() {
		case lua.LTNil:
		case lua.LTString:
			out = append(out, item.String())
		default:
			r.fail(prefix, fmt.Sprintf("%s[%d]", field, i), "string", item)
			return
		}
	}
	*dst = out
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
