package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Project is the content of a project's foundryup.lua.
type Project struct {
	Repo     string
	Tag      string
	Version  string
	Binaries []string

	// Checksums are inline expected digests (may be nil)
	Checksums *Checksums
	// ChecksumsFile points at a YAML/JSON file with the same shape as Checksums
	ChecksumsFile string
	// ChecksumsSignature is a detached OpenPGP signature over ChecksumsFile
	ChecksumsSignature string
}

// Checksums maps binary name to "<platform>-<arch>" to hex digest.
type Checksums struct {
	Algorithm string                       `yaml:"algorithm" json:"algorithm"`
	Binaries  map[string]map[string]string `yaml:"binaries" json:"binaries"`
}

// DefaultProject returns the values used when no project file exists.
func DefaultProject() *Project {
	return &Project{
		Repo:     DefaultRepo,
		Tag:      DefaultTag,
		Version:  DefaultTag,
		Binaries: append([]string(nil), DefaultBinaries...),
	}
}

// applyDefaults fills unset fields.
func (p *Project) applyDefaults() {
	if p.Repo == "" {
		p.Repo = DefaultRepo
	}
	if p.Tag == "" {
		p.Tag = DefaultTag
	}
	if p.Version == "" {
		p.Version = p.Tag
	}
	if len(p.Binaries) == 0 {
		p.Binaries = append([]string(nil), DefaultBinaries...)
	}
}

// Validate performs basic validation on a Project.
func (p *Project) Validate() error {
	if !repoPattern.MatchString(p.Repo) {
		return &ValidationError{Field: "repo", Message: fmt.Sprintf("invalid repository %q (expected owner/name)", p.Repo)}
	}
	if !versionPattern.MatchString(p.Tag) {
		return &ValidationError{Field: "tag", Message: fmt.Sprintf("invalid tag %q", p.Tag)}
	}
	if !versionPattern.MatchString(p.Version) {
		return &ValidationError{Field: "version", Message: fmt.Sprintf("invalid version %q", p.Version)}
	}

	if len(p.Binaries) > MaxBinaryCount {
		return &ValidationError{
			Field:   "binaries",
			Message: fmt.Sprintf("too many binaries (%d), maximum is %d", len(p.Binaries), MaxBinaryCount),
		}
	}
	seen := make(map[string]bool, len(p.Binaries))
	for i, b := range p.Binaries {
		if !binaryPattern.MatchString(b) {
			return &ValidationError{Field: fmt.Sprintf("binaries[%d]", i), Message: fmt.Sprintf("invalid binary name %q", b)}
		}
		if seen[b] {
			return &ValidationError{Field: fmt.Sprintf("binaries[%d]", i), Message: fmt.Sprintf("duplicate binary %q", b)}
		}
		seen[b] = true
	}

	if p.ChecksumsSignature != "" && p.ChecksumsFile == "" {
		return &ValidationError{Field: "checksums_signature", Message: "requires checksums_file"}
	}
	if p.Checksums != nil {
		if err := p.Checksums.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the algorithm, pair keys and digest encoding.
func (c *Checksums) Validate() error {
	switch strings.ToLower(strings.ReplaceAll(c.Algorithm, "-", "")) {
	case "sha256", "sha384", "sha512", "sha1":
	default:
		return &ValidationError{Field: "checksums.algorithm", Message: fmt.Sprintf("unsupported algorithm %q", c.Algorithm)}
	}

	for name, pairs := range c.Binaries {
		if !binaryPattern.MatchString(name) {
			return &ValidationError{Field: "checksums.binaries", Message: fmt.Sprintf("invalid binary name %q", name)}
		}
		for pair, digest := range pairs {
			field := fmt.Sprintf("checksums.binaries.%s[%q]", name, pair)
			if !pairPattern.MatchString(pair) {
				return &ValidationError{Field: field, Message: "key must be <platform>-<arch>"}
			}
			if !hexPattern.MatchString(digest) {
				return &ValidationError{Field: field, Message: "digest must be hex"}
			}
		}
	}
	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

var (
	repoPattern    = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]{0,127}$`)
	binaryPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	pairPattern    = regexp.MustCompile(`^(linux|darwin|win32)-(amd64|arm64)$`)
	hexPattern     = regexp.MustCompile(`^[0-9a-fA-F]{40,128}$`)
)
