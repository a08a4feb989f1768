// Package binary acquires release binaries and installs them into a bin
// directory.
//
// # Pipeline
//
// A Manager turns a resolved Options record into filesystem side effects:
//
//  1. The archive URL is built from the repository, tag, version, platform
//     and architecture.
//  2. The archive's requested entries are extracted into a cache directory
//     keyed by a hash of the URL and the sorted binary names.
//  3. Each cached binary is linked (or copied) into the bin directory and run
//     with --version.
//
// # Cache Lifecycle
//
// A cache entry P moves through three states:
//   - Missing: P does not exist
//   - Extracting: the archive is unpacked into P.downloading and checksums
//     are verified against the expected digests for the platform
//   - Present: P.downloading has been renamed to P
//
// The existence of P is the only completeness signal. Any failure while
// extracting removes P.downloading and P, and cleanup failures are combined
// with the original error. A stale P.downloading left by an interrupted run is
// removed before extracting again.
//
// Extraction runs while holding P.lock, so concurrent invocations sharing a
// cache wait for each other instead of clobbering one staging directory. A
// waiter that finds P present after taking the lock reuses it. Locks whose
// owner process is gone are broken.
//
// # Verification
//
// Expected digests come from a ChecksumSpec keyed by binary name and
// "<platform>-<arch>". A checksums file may additionally carry a detached
// OpenPGP signature which is checked against a user supplied keyring before
// any digest in it is trusted.
//
// # Usage
//
//	mgr, err := binary.NewManager(binary.Config{
//	    CacheRoot: cacheRoot,
//	    BinDir:    settings.BinPath(),
//	})
//	if err != nil {
//	    return err
//	}
//
//	report, err := mgr.Install(ctx, binary.Options{
//	    Repo:     "foundry-rs/foundry",
//	    Version:  binary.Version{Version: "nightly", Tag: "nightly"},
//	    Platform: "linux",
//	    Arch:     "amd64",
//	    Binaries: []string{"forge", "cast"},
//	})
package binary
