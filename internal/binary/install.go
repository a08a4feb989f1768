package binary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// versionCheckTimeout bounds a single --version invocation.
const versionCheckTimeout = 30 * time.Second

type symlinkFunc func(oldname, newname string) error

type versionFunc func(ctx context.Context, path string) (string, error)

// installFile places source at target, replacing whatever is there. A symlink
// is tried first and a byte copy is used when the link cannot be created
// across devices or without permission.
func installFile(symlink symlinkFunc, source, target string) (Strategy, error) {
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("remove stale %s: %w", target, err)
	}

	err := symlink(source, target)
	if err == nil {
		return StrategySymlink, nil
	}
	if !isLinkFallback(err) {
		return 0, fmt.Errorf("link %s: %w", target, err)
	}

	if err := copyFile(source, target); err != nil {
		return 0, err
	}
	return StrategyCopy, nil
}

func isLinkFallback(err error) bool {
	return errors.Is(err, syscall.EXDEV) ||
		errors.Is(err, syscall.EPERM) ||
		errors.Is(err, fs.ErrPermission)
}

// copyFile writes source's bytes to a uniquely named file beside target and
// renames it into place, so target never holds a partial copy.
func copyFile(source, target string) (err error) {
	src, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("open cached binary: %w", err)
	}
	defer src.Close()

	tmp := filepath.Join(filepath.Dir(target), fmt.Sprintf(".%s.%s.tmp", filepath.Base(target), uuid.NewString()))
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0755)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copy to %s: %w", target, err)
	}
	if err = dst.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, target); err != nil {
		return fmt.Errorf("rename %s: %w", target, err)
	}
	return nil
}

// runVersion executes path --version and returns its combined output.
func runVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}
