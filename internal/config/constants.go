package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalRoot = "cubekeeper"

	luaFieldInstallRoot = "install_root"
	luaFieldServerDir   = "server_dir"
	luaFieldCacheDir    = "cache_dir"
	luaFieldKeyring     = "keyring"

	luaFieldDownload       = "download"
	luaFieldHost           = "host"
	luaFieldRetries        = "retries"
	luaFieldChunkSize      = "chunk_size"
	luaFieldCopyBuffer     = "copy_buffer"
	luaFieldConnectTimeout = "connect_timeout"
	luaFieldTimeout        = "timeout"

	luaFieldServer        = "server"
	luaFieldExecutable    = "executable"
	luaFieldArgs          = "args"
	luaFieldMinStartupMS  = "min_startup_ms"
	luaFieldCommandBuffer = "command_buffer"
	luaFieldAutostart     = "autostart"

	luaFieldLog   = "log"
	luaFieldLevel = "level"
	luaFieldFile  = "file"

	luaFieldMetrics = "metrics"
	luaFieldListen  = "listen"
)

// Limits
const (
	MaxConfigSize = 1 << 20
	MaxRetries    = 10
	MaxBufferSize = 16 << 20
	MaxArgs       = 64

	// DefaultParseTimeout applies when the caller's context has no deadline.
	DefaultParseTimeout = 5 * time.Second
)
