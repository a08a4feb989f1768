package config

import "time"

// Lua schema field names and globals
const (
	luaGlobalFoundryup      = "foundryup"
	luaFieldRepo            = "repo"
	luaFieldTag             = "tag"
	luaFieldVersion         = "version"
	luaFieldBinaries        = "binaries"
	luaFieldChecksums       = "checksums"
	luaFieldAlgorithm       = "algorithm"
	luaFieldChecksumsFile   = "checksums_file"
	luaFieldChecksumsSigned = "checksums_signature"
)

// Project defaults
const (
	DefaultRepo = "foundry-rs/foundry"
	DefaultTag  = "nightly"
)

// DefaultBinaries are installed when a project names none.
var DefaultBinaries = []string{"forge", "anvil", "cast", "chisel"}

// Resource limits
const (
	// MaxConfigSize bounds a project file or checksums file
	MaxConfigSize = 1 << 20
	// MaxBinaryCount bounds the binaries list
	MaxBinaryCount = 64
	// DefaultParseTimeout applies when the context has no deadline
	DefaultParseTimeout = 5 * time.Second
	// callStackSize bounds Lua recursion
	callStackSize = 256
	// registrySize bounds the Lua value stack
	registrySize = 8 * 1024
)
