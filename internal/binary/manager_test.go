package binary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"

	"go.uber.org/multierr"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/archive"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/testutil"
)

const testVersion = "v1.2.3"

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func testOptions(binaries ...string) Options {
	return Options{
		Repo:     "foundry-rs/foundry",
		Version:  Version{Version: testVersion, Tag: testVersion},
		Platform: "linux",
		Arch:     "amd64",
		Binaries: binaries,
	}
}

func archivePath(platform, ext string) string {
	return fmt.Sprintf("/foundry-rs/foundry/releases/download/%s/foundry_%s_%s_amd64.%s", testVersion, testVersion, platform, ext)
}

// publishRelease serves a tar.gz holding fake binaries for names.
func publishRelease(t *testing.T, server *testutil.ReleaseServer, names ...string) {
	t.Helper()

	files := []testutil.File{{Name: "README.md", Content: "foundry"}}
	for _, name := range names {
		files = append(files, testutil.File{Name: name, Content: testutil.FakeBinary(name, testVersion)})
	}
	server.Add(archivePath("linux", "tar.gz"), testutil.BuildTarGz(t, files))
}

func newTestManager(t *testing.T, server *testutil.ReleaseServer) (*Manager, string, string) {
	t.Helper()

	root := t.TempDir()
	cacheRoot := filepath.Join(root, "cache")
	binDir := filepath.Join(root, "bin")

	mgr, err := NewManager(Config{CacheRoot: cacheRoot, BinDir: binDir, Host: server.URL})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return mgr, cacheRoot, binDir
}

func readDirNames(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected %s to not exist, stat error = %v", path, err)
	}
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid_config",
			config: Config{CacheRoot: "/tmp/cache", BinDir: "/tmp/bin"},
		},
		{
			name:    "missing_cache_root",
			config:  Config{BinDir: "/tmp/bin"},
			wantErr: true,
		},
		{
			name:    "missing_bin_dir",
			config:  Config{CacheRoot: "/tmp/cache"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager, err := NewManager(tt.config)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if manager.host != DefaultHost {
				t.Errorf("host = %q, want %q", manager.host, DefaultHost)
			}
		})
	}
}

func TestNewManagerResolvesCacheRoot(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	manager, err := NewManager(Config{CacheRoot: "cache", BinDir: "bin"})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if want := filepath.Join(wd, "cache"); manager.cacheRoot != want {
		t.Errorf("cacheRoot = %q, want %q", manager.cacheRoot, want)
	}

	dir, err := manager.CacheDir(testOptions("forge"))
	if err != nil {
		t.Fatalf("CacheDir() error = %v", err)
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("CacheDir() = %q, want an absolute path", dir)
	}
}

func TestInstallForgeAndCast(t *testing.T) {
	skipWithoutShell(t)

	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge", "cast", "anvil")
	mgr, cacheRoot, binDir := newTestManager(t, server)

	opts := testOptions("forge", "cast")
	opts.Checksums = &ChecksumSpec{
		Algorithm: "sha256",
		Binaries: map[string]map[string]string{
			"forge": {"linux-amd64": digest(testutil.FakeBinary("forge", testVersion))},
			"cast":  {"linux-amd64": digest(testutil.FakeBinary("cast", testVersion))},
		},
	}

	report, err := mgr.Install(context.Background(), opts)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	if report.FromCache {
		t.Error("first run reported a cache hit")
	}
	if len(report.Extracted) != 2 {
		t.Fatalf("expected 2 extraction results, got %d", len(report.Extracted))
	}

	// Exactly one promoted cache directory and no staging leftovers.
	if entries := readDirNames(t, cacheRoot); len(entries) != 1 || entries[0] != filepath.Base(report.CacheDir) {
		t.Errorf("cache root entries = %v, want [%s]", entries, filepath.Base(report.CacheDir))
	}

	if entries := readDirNames(t, binDir); len(entries) != 2 {
		t.Fatalf("bin dir entries = %v, want cast and forge", entries)
	}
	for _, inst := range report.Installed {
		name := filepath.Base(inst.Target)
		if want := fmt.Sprintf("%s %s", name, testVersion); inst.Version != want {
			t.Errorf("%s version = %q, want %q", name, inst.Version, want)
		}
		if inst.Strategy != StrategySymlink {
			t.Errorf("%s strategy = %s, want symlink", name, inst.Strategy)
		}
		link, err := os.Readlink(inst.Target)
		if err != nil {
			t.Fatalf("Readlink(%s) error = %v", inst.Target, err)
		}
		if link != filepath.Join(report.CacheDir, name) {
			t.Errorf("%s links to %s", name, link)
		}
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	skipWithoutShell(t)

	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge", "cast")
	mgr, _, _ := newTestManager(t, server)

	first, err := mgr.Install(context.Background(), testOptions("forge", "cast"))
	if err != nil {
		t.Fatalf("first Install() error = %v", err)
	}
	requests := server.Requests()

	// Order of the binary set does not change the cache key.
	second, err := mgr.Install(context.Background(), testOptions("cast", "forge"))
	if err != nil {
		t.Fatalf("second Install() error = %v", err)
	}

	if got := server.Requests(); got != requests {
		t.Errorf("second run issued %d requests", got-requests)
	}
	if !second.FromCache {
		t.Error("second run did not use the cache")
	}
	if len(second.Extracted) != 0 {
		t.Errorf("second run extracted %d binaries", len(second.Extracted))
	}
	if first.CacheDir != second.CacheDir {
		t.Errorf("cache dir changed: %s != %s", first.CacheDir, second.CacheDir)
	}
	if len(first.Installed) != len(second.Installed) {
		t.Fatalf("installed %d then %d binaries", len(first.Installed), len(second.Installed))
	}
	for i := range first.Installed {
		if first.Installed[i].Target != second.Installed[i].Target || first.Installed[i].Source != second.Installed[i].Source {
			t.Errorf("install %d differs: %+v vs %+v", i, first.Installed[i], second.Installed[i])
		}
	}
}

func TestInstallChecksumMismatch(t *testing.T) {
	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge", "cast")
	mgr, _, binDir := newTestManager(t, server)

	opts := testOptions("forge", "cast")
	opts.Checksums = &ChecksumSpec{
		Algorithm: "sha256",
		Binaries: map[string]map[string]string{
			"forge": {"linux-amd64": digest(testutil.FakeBinary("forge", testVersion))},
			"cast":  {"linux-amd64": digest("something else")},
		},
	}

	_, err := mgr.Install(context.Background(), opts)

	var integrity *IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if integrity.Binary != "cast" {
		t.Errorf("IntegrityError.Binary = %q, want cast", integrity.Binary)
	}
	if integrity.Expected != digest("something else") || integrity.Actual != digest(testutil.FakeBinary("cast", testVersion)) {
		t.Errorf("IntegrityError digests = %s / %s", integrity.Expected, integrity.Actual)
	}

	cacheDir, err := mgr.CacheDir(opts)
	if err != nil {
		t.Fatalf("CacheDir() error = %v", err)
	}
	assertNotExist(t, cacheDir)
	assertNotExist(t, cacheDir+stagingSuffix)
	assertNotExist(t, binDir)
}

func TestInstallMissingBinary(t *testing.T) {
	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge")
	mgr, _, _ := newTestManager(t, server)

	opts := testOptions("forge", "cast")
	_, err := mgr.Install(context.Background(), opts)

	var missing *archive.MissingBinariesError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingBinariesError, got %v", err)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != "cast" {
		t.Errorf("Missing = %v, want [cast]", missing.Missing)
	}

	cacheDir, _ := mgr.CacheDir(opts)
	assertNotExist(t, cacheDir)
	assertNotExist(t, cacheDir+stagingSuffix)
}

func TestInstallCleanupFailure(t *testing.T) {
	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge")
	mgr, _, _ := newTestManager(t, server)

	busy := errors.New("device or resource busy")
	mgr.removeAll = func(path string) error {
		if strings.HasSuffix(path, stagingSuffix) {
			return busy
		}
		return os.RemoveAll(path)
	}

	_, err := mgr.Install(context.Background(), testOptions("forge", "cast"))

	var missing *archive.MissingBinariesError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingBinariesError, got %v", err)
	}
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("got %d errors, want extraction and cleanup: %v", len(errs), err)
	}
	if !errors.Is(errs[1], busy) {
		t.Errorf("second error = %v, want the cleanup failure", errs[1])
	}
}

func TestInstallRecoversFromStaleStaging(t *testing.T) {
	skipWithoutShell(t)

	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge", "cast")
	mgr, _, _ := newTestManager(t, server)
	opts := testOptions("forge", "cast")

	cacheDir, err := mgr.CacheDir(opts)
	if err != nil {
		t.Fatalf("CacheDir() error = %v", err)
	}
	staging := cacheDir + stagingSuffix
	if err := os.MkdirAll(staging, 0755); err != nil {
		t.Fatalf("failed to create staging dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staging, "forge"), []byte("half written"), 0755); err != nil {
		t.Fatalf("failed to write partial file: %v", err)
	}

	report, err := mgr.Install(context.Background(), opts)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if report.FromCache {
		t.Error("stale staging directory was treated as a cache hit")
	}

	assertNotExist(t, staging)
	data, err := os.ReadFile(filepath.Join(cacheDir, "forge"))
	if err != nil {
		t.Fatalf("failed to read cached forge: %v", err)
	}
	if string(data) != testutil.FakeBinary("forge", testVersion) {
		t.Errorf("cached forge = %q", data)
	}
}

func TestInstallFallsBackToCopy(t *testing.T) {
	skipWithoutShell(t)

	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge")
	mgr, _, binDir := newTestManager(t, server)
	mgr.symlink = func(oldname, newname string) error {
		return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: syscall.EXDEV}
	}

	// A stale entry at the target is replaced.
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatalf("failed to create bin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "forge"), []byte("old forge"), 0755); err != nil {
		t.Fatalf("failed to write stale binary: %v", err)
	}

	report, err := mgr.Install(context.Background(), testOptions("forge"))
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	inst := report.Installed[0]
	if inst.Strategy != StrategyCopy {
		t.Errorf("strategy = %s, want copy", inst.Strategy)
	}

	info, err := os.Lstat(inst.Target)
	if err != nil {
		t.Fatalf("Lstat() error = %v", err)
	}
	if !info.Mode().IsRegular() {
		t.Errorf("target mode = %v, want regular file", info.Mode())
	}

	got, _ := os.ReadFile(inst.Target)
	want, _ := os.ReadFile(inst.Source)
	if string(got) != string(want) {
		t.Errorf("copy differs from cached source")
	}
	if entries := readDirNames(t, binDir); len(entries) != 1 {
		t.Errorf("bin dir entries = %v, want only forge", entries)
	}
}

func TestInstallSymlinkFailure(t *testing.T) {
	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge")
	mgr, _, _ := newTestManager(t, server)
	mgr.symlink = func(oldname, newname string) error {
		return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: syscall.ENOSPC}
	}

	_, err := mgr.Install(context.Background(), testOptions("forge"))
	if !errors.Is(err, syscall.ENOSPC) {
		t.Errorf("expected ENOSPC to surface, got %v", err)
	}
}

func TestInstallVersionCheckFailure(t *testing.T) {
	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge")
	mgr, _, _ := newTestManager(t, server)

	execErr := errors.New("exec format error")
	mgr.runVersion = func(ctx context.Context, path string) (string, error) {
		return "cannot execute binary file", execErr
	}

	_, err := mgr.Install(context.Background(), testOptions("forge"))

	var versionErr *VersionCheckError
	if !errors.As(err, &versionErr) {
		t.Fatalf("expected VersionCheckError, got %v", err)
	}
	if versionErr.Binary != "forge" || versionErr.Platform != "linux" || versionErr.Arch != "amd64" {
		t.Errorf("VersionCheckError = %+v", versionErr)
	}
	if !errors.Is(err, execErr) {
		t.Error("VersionCheckError does not unwrap to the exec error")
	}
}

func TestInstallWin32Zip(t *testing.T) {
	server := testutil.NewReleaseServer(t)
	server.Add(archivePath("win32", "zip"), testutil.BuildZip(t, []testutil.File{
		{Name: "forge.exe", Content: "forge for windows"},
		{Name: "cast.exe", Content: "cast for windows"},
	}, false))
	mgr, _, binDir := newTestManager(t, server)

	var checked []string
	mgr.runVersion = func(ctx context.Context, path string) (string, error) {
		checked = append(checked, filepath.Base(path))
		return "ok", nil
	}

	opts := testOptions("forge", "cast")
	opts.Platform = "win32"
	opts.Checksums = &ChecksumSpec{
		Algorithm: "sha256",
		Binaries: map[string]map[string]string{
			"forge": {"win32-amd64": digest("forge for windows")},
			"cast":  {"win32-amd64": digest("cast for windows")},
		},
	}

	report, err := mgr.Install(context.Background(), opts)
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	if report.Extracted[0].Binary != "forge.exe" || report.Extracted[1].Binary != "cast.exe" {
		t.Errorf("extracted = %+v, want requested order", report.Extracted)
	}
	if entries := readDirNames(t, binDir); len(entries) != 2 || entries[0] != "cast.exe" || entries[1] != "forge.exe" {
		t.Errorf("bin dir entries = %v", entries)
	}
	if len(checked) != 2 {
		t.Errorf("version checks = %v", checked)
	}
}

func TestInstallChecksumMissingForPlatform(t *testing.T) {
	server := testutil.NewReleaseServer(t)
	publishRelease(t, server, "forge")
	mgr, _, _ := newTestManager(t, server)

	opts := testOptions("forge")
	opts.Checksums = &ChecksumSpec{
		Algorithm: "sha256",
		Binaries:  map[string]map[string]string{"forge": {"darwin-arm64": "abc"}},
	}

	if _, err := mgr.Install(context.Background(), opts); err == nil {
		t.Fatal("expected error for missing linux-amd64 checksum")
	}
	if server.Requests() != 0 {
		t.Errorf("issued %d requests before failing", server.Requests())
	}
}

func TestInstallNetworkFailure(t *testing.T) {
	server := testutil.NewReleaseServer(t)
	mgr, cacheRoot, _ := newTestManager(t, server)

	_, err := mgr.Install(context.Background(), testOptions("forge"))
	if err == nil {
		t.Fatal("expected error for missing release")
	}

	if entries := readDirNames(t, cacheRoot); len(entries) != 0 {
		t.Errorf("cache root entries after failure = %v", entries)
	}
}
