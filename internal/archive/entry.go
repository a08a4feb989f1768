package archive

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// NewHash returns a hash for a checksum algorithm name. An empty name yields nil.
func NewHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(strings.ReplaceAll(algorithm, "-", "")) {
	case "":
		return nil, nil
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	case "sha1":
		return sha1.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm: %s", algorithm)
	}
}

// writeEntry copies one entry into destDir/name, hashing it on the way when
// algorithm is set.
func writeEntry(destDir, name string, r io.Reader, algorithm string) (Result, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return Result{}, err
	}

	target := filepath.Join(destDir, name)
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", name, err)
	}

	var w io.Writer = f
	if h != nil {
		w = io.MultiWriter(f, h)
	}

	n, err := io.Copy(w, r)
	if err != nil {
		f.Close()
		return Result{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("close %s: %w", name, err)
	}

	res := Result{Path: target, Binary: name, Size: n}
	if h != nil {
		// The entry reader hit EOF, so the digest covers every byte.
		res.Checksum = hex.EncodeToString(h.Sum(nil))
	}
	return res, nil
}

// limitReader fails with ErrArchiveTooLarge instead of silently truncating.
type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, ErrArchiveTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
