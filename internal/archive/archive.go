// Package archive extracts selected binaries from remote release archives.
//
// Two container families are supported. Sequential formats (tar.gz, tar.xz)
// are decoded straight off the download stream. Zip archives keep their
// directory at the end of the file, so they are read through a ranged HTTP
// source that fetches the trailing directory and then one byte span per
// selected entry.
//
// Only entries whose base name is requested are written to disk. When a
// checksum algorithm is given each entry is hashed while it is written, and the
// digest is taken only after the entry's bytes have ended.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/download"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/logger"
)

// DefaultMaxArchiveSize bounds archive length and per-entry size.
const DefaultMaxArchiveSize int64 = 1 << 30

// ErrArchiveTooLarge is returned when an archive or entry exceeds the size bound.
var ErrArchiveTooLarge = errors.New("archive exceeds size limit")

// ErrChecksumMismatch is returned when an entry's bytes do not match the
// checksum recorded by the archive itself.
var ErrChecksumMismatch = errors.New("archive entry is corrupt")

// Format identifies an archive container.
type Format int

const (
	// FormatUnknown is returned for unrecognised extensions
	FormatUnknown Format = iota
	// FormatTarGz is a gzip-compressed tar stream
	FormatTarGz
	// FormatTarXz is an xz-compressed tar stream
	FormatTarXz
	// FormatZip is a zip archive read through ranged requests
	FormatZip
)

// String returns the file extension of the format
func (f Format) String() string {
	switch f {
	case FormatTarGz:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	case FormatZip:
		return "zip"
	default:
		return "unknown"
	}
}

// Result describes one extracted binary.
type Result struct {
	Path     string
	Binary   string
	Size     int64
	Checksum string // hex digest, empty when no algorithm was requested
}

// Extractor materialises the requested binaries of an archive into destDir.
type Extractor interface {
	Extract(ctx context.Context, archiveURL string, binaries []string, destDir, algorithm string) ([]Result, error)
}

// Config carries the collaborators shared by both extractor variants.
type Config struct {
	Client         *download.Client
	MaxArchiveSize int64
	Log            *logrus.Entry
}

func (c Config) withDefaults() Config {
	if c.Client == nil {
		c.Client = download.NewClient()
	}
	if c.MaxArchiveSize <= 0 {
		c.MaxArchiveSize = DefaultMaxArchiveSize
	}
	if c.Log == nil {
		c.Log = logger.New("archive").Entry()
	}
	return c
}

// FormatOf picks the container format from the URL path's extension.
func FormatOf(archiveURL string) (Format, error) {
	u, err := url.Parse(archiveURL)
	if err != nil {
		return FormatUnknown, fmt.Errorf("parse archive url: %w", err)
	}

	name := strings.ToLower(path.Base(u.Path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return FormatTarXz, nil
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	default:
		return FormatUnknown, fmt.Errorf("unsupported archive format: %s", name)
	}
}

// New returns the extractor for a format.
func New(format Format, cfg Config) (Extractor, error) {
	cfg = cfg.withDefaults()

	switch format {
	case FormatTarGz:
		return &tarExtractor{cfg: cfg, format: format, decompress: gzipDecoder}, nil
	case FormatTarXz:
		return &tarExtractor{cfg: cfg, format: format, decompress: xzDecoder}, nil
	case FormatZip:
		return &zipExtractor{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("no extractor for format %s", format)
	}
}

// ForURL selects the extractor once from the archive URL.
func ForURL(archiveURL string, cfg Config) (Extractor, error) {
	format, err := FormatOf(archiveURL)
	if err != nil {
		return nil, err
	}
	return New(format, cfg)
}

// MissingBinariesError reports requested binaries that an archive did not contain.
type MissingBinariesError struct {
	URL      string
	Missing  []string
	Expected int
	Found    int
}

func (e *MissingBinariesError) Error() string {
	return fmt.Sprintf("archive %s is missing binaries %s (found %d of %d)",
		e.URL, strings.Join(e.Missing, ", "), e.Found, e.Expected)
}

// entryName maps an archive member path to the name matched against the
// requested binaries.
func entryName(member string) string {
	return path.Base(strings.ReplaceAll(member, `\`, "/"))
}

func wantedSet(binaries []string) (map[string]bool, error) {
	if len(binaries) == 0 {
		return nil, errors.New("no binaries requested")
	}
	set := make(map[string]bool, len(binaries))
	for _, b := range binaries {
		if b == "" || b != entryName(b) || b == "." || b == ".." {
			return nil, fmt.Errorf("invalid binary name %q", b)
		}
		if set[b] {
			return nil, fmt.Errorf("binary %q requested twice", b)
		}
		set[b] = true
	}
	return set, nil
}

func checkComplete(archiveURL string, binaries []string, found map[string]bool) error {
	if len(found) == len(binaries) {
		return nil
	}
	var missing []string
	for _, b := range binaries {
		if !found[b] {
			missing = append(missing, b)
		}
	}
	return &MissingBinariesError{
		URL:      archiveURL,
		Missing:  missing,
		Expected: len(binaries),
		Found:    len(found),
	}
}
