// Package config loads cubekeeper's Lua configuration.
//
// The file is plain Lua evaluated in a sandboxed gopher-lua VM. It must
// assign a global "cubekeeper" table; every field is optional and falls
// back to Default:
//
//	cubekeeper = {
//	  install_root = "~/cubekeeper",
//	  download = { retries = 3, timeout = 600 },
//	  server = {
//	    args = { "--no-output-buffering", platform.when(platform.abi == "x86", "-d") },
//	    autostart = true,
//	  },
//	  log = { level = "debug", file = "~/cubekeeper.log" },
//	  metrics = { listen = "127.0.0.1:9310" },
//	}
//
// A read-only "platform" table (os, arch, abi, is_linux, is_64bit, distro,
// when) is injected when the parser has a detector, so one file can serve
// several devices.
//
// The sandbox removes os, io, debug, package and every way to load code or
// reach raw table access. Evaluation is bounded by the caller's context, or
// DefaultParseTimeout when it has no deadline.
//
// Setting install_root without server_dir moves the server directory under
// the new root.
//
// Errors are *ParseError for Lua failures and invalid fields; the Detail of
// the latter carries the *ValidationError text. Use FormatError for display.
package config
