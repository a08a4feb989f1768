package binary

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/archive"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/download"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/logger"
)

// DefaultHost is where release archives are downloaded from.
const DefaultHost = "https://github.com"

// Manager orchestrates extraction into the cache and installation into the
// bin directory.
type Manager struct {
	cacheRoot  string
	binDir     string
	host       string
	archiveCfg archive.Config
	log        *logrus.Entry

	symlink    symlinkFunc
	runVersion versionFunc
	removeAll  func(string) error

	staleLockAge time.Duration
	lockPoll     time.Duration
}

// Config holds configuration for the binary manager
type Config struct {
	// CacheRoot holds one directory per archive URL and binary set
	CacheRoot string
	// BinDir receives the installed binaries
	BinDir string
	// Host is the release host (default: https://github.com)
	Host string
	// Client performs downloads (default: download.NewClient())
	Client *download.Client
	// MaxArchiveSize bounds archive and entry sizes (default: archive.DefaultMaxArchiveSize)
	MaxArchiveSize int64
	// Log receives progress (default: the "orchestrator" module logger)
	Log *logrus.Entry
}

// NewManager creates a new binary manager
func NewManager(config Config) (*Manager, error) {
	if config.CacheRoot == "" {
		return nil, fmt.Errorf("CacheRoot is required")
	}
	if config.BinDir == "" {
		return nil, fmt.Errorf("BinDir is required")
	}

	// Symlinks in BinDir point into the cache, so the root must not depend
	// on the working directory.
	cacheRoot, err := filepath.Abs(config.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Log == nil {
		config.Log = logger.New("orchestrator").Entry()
	}

	return &Manager{
		cacheRoot: cacheRoot,
		binDir:    config.BinDir,
		host:      config.Host,
		archiveCfg: archive.Config{
			Client:         config.Client,
			MaxArchiveSize: config.MaxArchiveSize,
			Log:            config.Log,
		},
		log:          config.Log,
		symlink:      os.Symlink,
		runVersion:   runVersion,
		removeAll:    os.RemoveAll,
		staleLockAge: DefaultStaleLockAge,
		lockPoll:     defaultLockPoll,
	}, nil
}

// ArchiveURL returns the release archive URL for opts.
func (m *Manager) ArchiveURL(opts Options) (string, error) {
	return constructArchiveURL(m.host, opts)
}

// CacheDir returns the cache entry path for opts.
func (m *Manager) CacheDir(opts Options) (string, error) {
	archiveURL, err := m.ArchiveURL(opts)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.cacheRoot, CacheKey(archiveURL, m.fileNames(opts))), nil
}

// Install makes the requested binaries available in the bin directory,
// extracting them into the cache first when needed.
func (m *Manager) Install(ctx context.Context, opts Options) (*InstallReport, error) {
	if len(opts.Binaries) == 0 {
		return nil, fmt.Errorf("no binaries requested")
	}

	archiveURL, err := m.ArchiveURL(opts)
	if err != nil {
		return nil, fmt.Errorf("construct archive url: %w", err)
	}

	var expected map[string]string
	var algorithm string
	if opts.Checksums != nil {
		algorithm = opts.Checksums.Algorithm
		if _, err := archive.NewHash(algorithm); err != nil || algorithm == "" {
			return nil, fmt.Errorf("invalid checksum algorithm %q", algorithm)
		}
		expected, err = opts.Checksums.For(opts.Platform, opts.Arch, opts.Binaries)
		if err != nil {
			return nil, err
		}
	}

	names := m.fileNames(opts)
	cacheDir := filepath.Join(m.cacheRoot, CacheKey(archiveURL, names))
	report := &InstallReport{URL: archiveURL, CacheDir: cacheDir}

	log := m.log.WithFields(logrus.Fields{
		"url":   archiveURL,
		"cache": cacheDir,
	})

	present, err := entryExists(cacheDir)
	if err != nil {
		return nil, err
	}
	if present {
		report.FromCache = true
		log.Info("Using cached binaries")
	} else {
		report.Extracted, report.FromCache, err = m.fill(ctx, archiveURL, names, cacheDir, algorithm, expected, opts)
		if err != nil {
			return nil, err
		}
	}

	report.Installed, err = m.installAll(ctx, cacheDir, opts)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// fill populates a missing cache entry while holding its lock. Another
// process may have promoted the entry while this one waited, in which case
// nothing is downloaded.
func (m *Manager) fill(ctx context.Context, archiveURL string, names []string, cacheDir, algorithm string, expected map[string]string, opts Options) (results []archive.Result, fromCache bool, err error) {
	if err := os.MkdirAll(m.cacheRoot, 0755); err != nil {
		return nil, false, fmt.Errorf("create cache root: %w", err)
	}
	lock, err := m.acquireLock(ctx, cacheDir+lockSuffix)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		err = multierr.Append(err, lock.release())
	}()

	present, err := entryExists(cacheDir)
	if err != nil {
		return nil, false, err
	}
	if present {
		m.log.WithField("cache", cacheDir).Info("Cache entry filled by another process")
		return nil, true, nil
	}

	m.log.WithField("url", archiveURL).Info("Cache miss, downloading archive")
	results, err = m.extract(ctx, archiveURL, names, cacheDir, algorithm, expected, opts)
	return results, false, err
}

// entryExists reports whether a promoted cache entry is present.
func entryExists(cacheDir string) (bool, error) {
	_, err := os.Stat(cacheDir)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("check cache: %w", err)
	}
}

// extract runs the Extracting state: stage, verify, promote. On failure both
// the staging directory and the final directory are removed.
func (m *Manager) extract(ctx context.Context, archiveURL string, names []string, cacheDir, algorithm string, expected map[string]string, opts Options) (results []archive.Result, err error) {
	staging := cacheDir + stagingSuffix

	defer func() {
		if err == nil {
			return
		}
		cleanupErr := multierr.Combine(m.remove(staging), m.remove(cacheDir))
		if cleanupErr != nil {
			m.log.WithError(cleanupErr).Warn("Failed to clean up cache entry")
		}
		err = multierr.Combine(err, cleanupErr)
	}()

	// A leftover staging directory belongs to an interrupted run.
	if _, statErr := os.Stat(staging); statErr == nil {
		m.log.WithField("staging", staging).Warn("Removing stale staging directory")
	}
	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("remove stale staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	extractor, err := archive.ForURL(archiveURL, m.archiveCfg)
	if err != nil {
		return nil, err
	}
	results, err = extractor.Extract(ctx, archiveURL, names, staging, algorithm)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", archiveURL, err)
	}
	if len(results) != len(names) {
		return nil, fmt.Errorf("extracted %d of %d binaries", len(results), len(names))
	}

	if expected != nil {
		if err := verifyChecksums(results, expected, algorithm, opts); err != nil {
			return nil, err
		}
		m.log.WithField("algorithm", algorithm).Info("Checksums verified")
	}

	if err := os.Rename(staging, cacheDir); err != nil {
		return nil, fmt.Errorf("promote cache entry: %w", err)
	}

	for i := range results {
		results[i].Path = filepath.Join(cacheDir, results[i].Binary)
	}
	m.log.WithField("cache", cacheDir).Info("Promoted cache entry")
	return results, nil
}

// remove deletes path and everything under it. A missing path is not an error.
func (m *Manager) remove(path string) error {
	if err := m.removeAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// installAll links every file of the cache entry into the bin directory and
// runs each one's version check.
func (m *Manager) installAll(ctx context.Context, cacheDir string, opts Options) ([]InstalledBinary, error) {
	files, err := cachedFiles(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	if err := os.MkdirAll(m.binDir, 0755); err != nil {
		return nil, fmt.Errorf("create bin dir: %w", err)
	}

	installed := make([]InstalledBinary, 0, len(files))
	for _, file := range files {
		source := filepath.Join(cacheDir, file)
		target := filepath.Join(m.binDir, file)

		strategy, err := installFile(m.symlink, source, target)
		if err != nil {
			return nil, fmt.Errorf("install %s: %w", file, err)
		}

		log := m.log.WithFields(logrus.Fields{
			"binary":   file,
			"target":   target,
			"strategy": strategy.String(),
		})
		log.Info("Installed binary")

		out, err := m.runVersion(ctx, target)
		if err != nil {
			return nil, &VersionCheckError{
				Binary:   binaryName(file, opts.Platform),
				Platform: opts.Platform,
				Arch:     opts.Arch,
				Output:   out,
				Err:      err,
			}
		}
		log.WithField("version", out).Info("Version check passed")

		installed = append(installed, InstalledBinary{
			Target:   target,
			Source:   source,
			Strategy: strategy,
			Version:  out,
		})
	}
	return installed, nil
}

func (m *Manager) fileNames(opts Options) []string {
	names := make([]string, len(opts.Binaries))
	for i, b := range opts.Binaries {
		names[i] = fileName(b, opts.Platform)
	}
	return names
}
