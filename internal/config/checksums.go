package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadChecksums reads a checksums file. JSON files are accepted since JSON
// is valid YAML.
//
//	algorithm: sha256
//	binaries:
//	  forge:
//	    linux-amd64: 3f1c...
//	    darwin-arm64: 9ab2...
func LoadChecksums(path string) (*Checksums, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checksums file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, fmt.Errorf("read checksums file: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, fmt.Errorf("checksums file %s exceeds %d bytes", path, MaxConfigSize)
	}

	var checksums Checksums
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&checksums); err != nil {
		return nil, fmt.Errorf("parse checksums file %s: %w", path, err)
	}
	if err := checksums.Validate(); err != nil {
		return nil, fmt.Errorf("checksums file %s: %w", path, err)
	}
	return &checksums, nil
}

// Merge overlays inline digests on top of c. Algorithms must agree.
func (c *Checksums) Merge(other *Checksums) (*Checksums, error) {
	if other == nil {
		return c, nil
	}
	if c == nil {
		return other, nil
	}
	if c.Algorithm != other.Algorithm {
		return nil, fmt.Errorf("checksum algorithms differ: %s and %s", c.Algorithm, other.Algorithm)
	}

	merged := &Checksums{Algorithm: c.Algorithm, Binaries: make(map[string]map[string]string)}
	for _, src := range []*Checksums{c, other} {
		for name, pairs := range src.Binaries {
			if merged.Binaries[name] == nil {
				merged.Binaries[name] = make(map[string]string)
			}
			for pair, digest := range pairs {
				merged.Binaries[name][pair] = digest
			}
		}
	}
	return merged, nil
}
