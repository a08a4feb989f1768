package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"
)

// File is one member of a fixture archive.
type File struct {
	Name    string
	Content string
	Mode    int64
	Dir     bool
}

// FakeBinary returns a shell script that prints "<name> <version>" for any
// arguments, standing in for a real toolchain binary in version checks.
func FakeBinary(name, version string) string {
	return fmt.Sprintf("#!/bin/sh\necho '%s %s'\n", name, version)
}

// BuildTarGz returns a gzip-compressed tar archive holding files in order.
func BuildTarGz(t *testing.T, files []File) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	writeTar(t, zw, files)
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// BuildTarXz returns an xz-compressed tar archive holding files in order.
func BuildTarXz(t *testing.T, files []File) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("failed to create xz writer: %v", err)
	}
	writeTar(t, zw, files)
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close xz writer: %v", err)
	}
	return buf.Bytes()
}

func writeTar(t *testing.T, w io.Writer, files []File) {
	t.Helper()

	tw := tar.NewWriter(w)
	for _, f := range files {
		header := &tar.Header{
			Name: f.Name,
			Mode: modeOr(f.Mode, 0755),
			Size: int64(len(f.Content)),
		}
		if f.Dir {
			header.Typeflag = tar.TypeDir
			header.Size = 0
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("failed to write header for %s: %v", f.Name, err)
		}
		if f.Dir {
			continue
		}
		if _, err := tw.Write([]byte(f.Content)); err != nil {
			t.Fatalf("failed to write content for %s: %v", f.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
}

// BuildZip returns a zip archive holding files in order. Entries are
// deflated unless store is set.
func BuildZip(t *testing.T, files []File, store bool) []byte {
	t.Helper()

	method := zip.Deflate
	if store {
		method = zip.Store
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		header := &zip.FileHeader{Name: f.Name, Method: method}
		if f.Dir {
			header.Name = f.Name + "/"
			if _, err := zw.CreateHeader(header); err != nil {
				t.Fatalf("failed to add dir %s: %v", f.Name, err)
			}
			continue
		}
		header.SetMode(0755)
		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("failed to add %s: %v", f.Name, err)
		}
		if _, err := w.Write([]byte(f.Content)); err != nil {
			t.Fatalf("failed to write %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip writer: %v", err)
	}
	return buf.Bytes()
}

func modeOr(mode, def int64) int64 {
	if mode == 0 {
		return def
	}
	return mode
}
