package archive

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// zipExtractor reads the zip directory through ranged requests and then
// streams each selected entry's compressed bytes with one request apiece.
type zipExtractor struct {
	cfg Config
}

func (e *zipExtractor) Extract(ctx context.Context, archiveURL string, binaries []string, destDir, algorithm string) ([]Result, error) {
	wanted, err := wantedSet(binaries)
	if err != nil {
		return nil, err
	}
	if _, err := NewHash(algorithm); err != nil {
		return nil, err
	}

	src := NewRangeSource(e.cfg.Client, archiveURL, e.cfg.MaxArchiveSize)
	ra, err := src.ReaderAt(ctx)
	if err != nil {
		return nil, err
	}
	size, err := src.Size(ctx)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("read zip directory: %w", err)
	}

	entries := make(map[string]*zip.File, len(wanted))
	found := make(map[string]bool, len(wanted))
	for _, f := range zr.File {
		if !f.Mode().IsRegular() {
			continue
		}
		name := entryName(f.Name)
		if !wanted[name] {
			continue
		}
		if found[name] {
			return nil, fmt.Errorf("archive contains %s more than once", name)
		}
		entries[name] = f
		found[name] = true
	}

	// The directory already tells us whether anything is missing, so fail
	// before fetching any entry data.
	if err := checkComplete(archiveURL, binaries, found); err != nil {
		return nil, err
	}

	e.cfg.Log.WithFields(map[string]any{
		"url":     archiveURL,
		"bytes":   size,
		"entries": len(zr.File),
	}).Debug("Read zip directory")

	results := make([]Result, 0, len(binaries))
	for _, name := range binaries {
		res, err := e.extractEntry(ctx, src, entries[name], name, destDir, algorithm)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *zipExtractor) extractEntry(ctx context.Context, src *RangeSource, f *zip.File, name, destDir, algorithm string) (Result, error) {
	if f.UncompressedSize64 > uint64(e.cfg.MaxArchiveSize) {
		return Result{}, fmt.Errorf("%w: entry %s is %d bytes", ErrArchiveTooLarge, name, f.UncompressedSize64)
	}

	offset, err := f.DataOffset()
	if err != nil {
		return Result{}, fmt.Errorf("locate %s: %w", name, err)
	}

	body, err := src.Stream(ctx, offset, int64(f.CompressedSize64))
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer body.Close()

	var r io.Reader
	switch f.Method {
	case zip.Store:
		r = body
	case zip.Deflate:
		fr := flate.NewReader(body)
		defer fr.Close()
		r = fr
	default:
		return Result{}, fmt.Errorf("entry %s uses unsupported compression method %d", name, f.Method)
	}

	// The directory's size is untrusted: never write more than it claims.
	limit := min(int64(f.UncompressedSize64), e.cfg.MaxArchiveSize)
	crc := crc32.NewIEEE()
	res, err := writeEntry(destDir, name, io.TeeReader(&limitReader{r: r, remaining: limit}, crc), algorithm)
	if err != nil {
		return Result{}, err
	}

	if uint64(res.Size) != f.UncompressedSize64 {
		return Result{}, fmt.Errorf("entry %s: wrote %d bytes, directory says %d", name, res.Size, f.UncompressedSize64)
	}
	if crc.Sum32() != f.CRC32 {
		return Result{}, fmt.Errorf("%w: entry %s crc32 is %08x, directory says %08x", ErrChecksumMismatch, name, crc.Sum32(), f.CRC32)
	}
	return res, nil
}
