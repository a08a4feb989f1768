// Package config reads everything foundryup needs before it touches the
// network: the project file, checksum manifests and user settings.
//
// # Project file
//
// A project pins the release to install in a sandboxed Lua file,
// foundryup.lua by default:
//
//	foundryup = {
//	  repo = "foundry-rs/foundry",
//	  tag = "v1.0.0",
//	  binaries = {
//	    "forge",
//	    "cast",
//	    platform.when(platform.is_linux, "anvil"),
//	  },
//	  checksums_file = "checksums.yaml",
//	  checksums_signature = "checksums.yaml.asc",
//	}
//
// Unset fields fall back to DefaultProject. A missing file is not an error.
//
// The file runs in gopher-lua with only the base, table, string and math
// libraries opened. Loaders, metatable access and raw table access are
// removed, and evaluation is bounded by the caller's context or
// DefaultParseTimeout. The platform package injects a read-only "platform"
// table for conditional entries; holes left by platform.when are skipped.
//
// # Checksums
//
// Expected digests come from the inline checksums table, a YAML or JSON
// file loaded with LoadChecksums, or both combined with Checksums.Merge.
// Keys below each binary are "<platform>-<arch>" pairs such as
// "linux-amd64" or "win32-amd64".
//
// # Settings
//
// Settings hold per-user options (cache location, install directory,
// timeouts, logging). NewViper layers defaults, the settings file at
// ConfigDir()/config.yaml and FOUNDRYUP_* environment variables; command
// flags bind on top.
package config
