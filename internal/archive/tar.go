package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/download"
)

type decoder func(io.Reader) (io.Reader, error)

func gzipDecoder(r io.Reader) (io.Reader, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	return zr, nil
}

func xzDecoder(r io.Reader) (io.Reader, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create xz reader: %w", err)
	}
	return zr, nil
}

// tarExtractor pipes the download stream through a decompressor and a tar
// reader, writing matching entries as they go by.
type tarExtractor struct {
	cfg        Config
	format     Format
	decompress decoder
}

func (e *tarExtractor) Extract(ctx context.Context, archiveURL string, binaries []string, destDir, algorithm string) ([]Result, error) {
	wanted, err := wantedSet(binaries)
	if err != nil {
		return nil, err
	}
	if _, err := NewHash(algorithm); err != nil {
		return nil, err
	}

	stream, resp, err := e.cfg.Client.Open(ctx, download.Request{URL: archiveURL})
	if err != nil {
		return nil, fmt.Errorf("download archive: %w", err)
	}
	// Closing early (all binaries found) drops the rest of the transfer.
	defer stream.Close()

	if resp.ContentLength > e.cfg.MaxArchiveSize {
		return nil, fmt.Errorf("%w: %d bytes reported, limit %d", ErrArchiveTooLarge, resp.ContentLength, e.cfg.MaxArchiveSize)
	}

	e.cfg.Log.WithFields(map[string]any{
		"url":    resp.URL,
		"format": e.format.String(),
		"bytes":  resp.ContentLength,
	}).Debug("Streaming archive")

	dec, err := e.decompress(&limitReader{r: stream, remaining: e.cfg.MaxArchiveSize})
	if err != nil {
		return nil, err
	}
	tr := tar.NewReader(dec)

	found := make(map[string]bool, len(wanted))
	results := make([]Result, 0, len(wanted))

	for len(found) < len(wanted) {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}
		name := entryName(header.Name)
		if !wanted[name] {
			continue
		}
		if found[name] {
			return nil, fmt.Errorf("archive contains %s more than once", name)
		}
		if header.Size > e.cfg.MaxArchiveSize {
			return nil, fmt.Errorf("%w: entry %s is %d bytes", ErrArchiveTooLarge, name, header.Size)
		}

		res, err := writeEntry(destDir, name, tr, algorithm)
		if err != nil {
			return nil, err
		}
		found[name] = true
		results = append(results, res)

		e.cfg.Log.WithFields(map[string]any{
			"binary": name,
			"bytes":  res.Size,
		}).Debug("Extracted entry")
	}

	if err := checkComplete(archiveURL, binaries, found); err != nil {
		return nil, err
	}
	return results, nil
}
