package binary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/archive"
)

// Version names a release. Tag selects the release download path and Version
// is embedded in the archive file name.
type Version struct {
	Version string
	Tag     string
}

// ChecksumSpec holds expected digests keyed by binary name, then by
// "<platform>-<arch>".
type ChecksumSpec struct {
	Algorithm string                       `yaml:"algorithm" json:"algorithm"`
	Binaries  map[string]map[string]string `yaml:"binaries" json:"binaries"`
}

// For narrows the checksums to one platform/arch pair. Every binary in names must
// have a digest for the pair.
func (c *ChecksumSpec) For(platform, arch string, names []string) (map[string]string, error) {
	key := platform + "-" + arch
	digests := make(map[string]string, len(names))

	var missing []string
	for _, name := range names {
		digest := c.Binaries[name][key]
		if digest == "" {
			missing = append(missing, name)
			continue
		}
		digests[name] = strings.ToLower(digest)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("no %s checksum for %s on %s", c.Algorithm, strings.Join(missing, ", "), key)
	}
	return digests, nil
}

// Options is the resolved input of one install run.
type Options struct {
	Repo      string
	Version   Version
	Platform  string // linux, darwin or win32
	Arch      string // amd64 or arm64
	Binaries  []string
	Checksums *ChecksumSpec
}

// Strategy records how a binary landed in the bin directory.
type Strategy int

const (
	// StrategySymlink means the target is a symlink into the cache
	StrategySymlink Strategy = iota
	// StrategyCopy means the target is a byte copy of the cached file
	StrategyCopy
)

// String returns the string representation of the strategy
func (s Strategy) String() string {
	switch s {
	case StrategySymlink:
		return "symlink"
	case StrategyCopy:
		return "copy"
	default:
		return "unknown"
	}
}

// InstalledBinary describes one entry of the bin directory.
type InstalledBinary struct {
	Target   string
	Source   string
	Strategy Strategy
	Version  string // trimmed output of the version check
}

// InstallReport summarises a run.
type InstallReport struct {
	URL       string
	CacheDir  string
	FromCache bool
	// Extracted is empty when the cache entry already existed.
	Extracted []archive.Result
	Installed []InstalledBinary
}
