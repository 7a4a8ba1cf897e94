// Package paths resolves the default on-disk locations used by cubekeeper.
package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "cubekeeper"

	// ServerDirName is the directory under the data dir holding server files.
	ServerDirName = "cuberite-server"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the Lua configuration file.
//
//	Linux:   $XDG_CONFIG_HOME/cubekeeper/config.lua
//	macOS:   ~/Library/Application Support/cubekeeper/config.lua
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.lua")
}

// Path to the install root holding the server executable.
//
//	Linux:   $XDG_DATA_HOME/cubekeeper
//	macOS:   ~/Library/Application Support/cubekeeper
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// Path to the server data directory. The executable runs with this as its
// working directory.
func ServerDir() string {
	return filepath.Join(DataDir(), ServerDirName)
}

// Path to the directory for downloaded archives awaiting extraction.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, appName)
}

// Path to the rotating log file used when logging to a file is requested.
func LogFile() string {
	return filepath.Join(xdg.StateHome, appName, appName+".log")
}

// Path to the directory for runtime files (run lock).
//
//	Linux:   $XDG_RUNTIME_DIR/cubekeeper or /run/user/<uid>/cubekeeper
//	macOS:   ~/Library/Caches/cubekeeper/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName)
	}
	return filepath.Join(xdg.CacheHome, appName, "run")
}
