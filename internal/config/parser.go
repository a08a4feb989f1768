package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/logger"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
	log      *logrus.Entry
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector, log: logger.New("config").Entry()}
}

// WithLogger sets the logger used for parse diagnostics.
func (p *Parser) WithLogger(log *logrus.Entry) *Parser {
	p.log = log
	return p
}

// ParseFile parses a project file. A missing file yields DefaultProject and
// found=false. Relative checksum paths are resolved against the file's
// directory.
func (p *Parser) ParseFile(ctx context.Context, path string) (project *Project, found bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		p.log.WithField("path", path).Debug("No project file, using defaults")
		return DefaultProject(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open project file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("read project file: %w", err)
	}
	if len(data) > MaxConfigSize {
		return nil, false, fmt.Errorf("project file %s exceeds %d bytes", path, MaxConfigSize)
	}

	project, err = p.ParseString(ctx, string(data))
	if err != nil {
		return nil, true, err
	}

	dir := filepath.Dir(path)
	if project.ChecksumsFile != "" && !filepath.IsAbs(project.ChecksumsFile) {
		project.ChecksumsFile = filepath.Join(dir, project.ChecksumsFile)
	}
	if project.ChecksumsSignature != "" && !filepath.IsAbs(project.ChecksumsSignature) {
		project.ChecksumsSignature = filepath.Join(dir, project.ChecksumsSignature)
	}

	p.log.WithFields(logrus.Fields{
		"path":     path,
		"repo":     project.Repo,
		"tag":      project.Tag,
		"binaries": strings.Join(project.Binaries, ","),
	}).Debug("Parsed project file")
	return project, true, nil
}

// ParseString parses a Lua config from a string.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Project, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultParseTimeout)
		defer cancel()
	}

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctx.Err() != nil {
			return nil, &ParseError{Message: "config evaluation timed out", Detail: ctx.Err().Error()}
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractProject(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractProject reads the global "foundryup" table.
func extractProject(L *lua.LState) (*Project, error) {
	value := L.GetGlobal(luaGlobalFoundryup)
	table, ok := value.(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "missing or invalid 'foundryup' table",
			Detail:  fmt.Sprintf("expected table, got %s", value.Type()),
		}
	}

	project := &Project{}
	var err error

	if project.Repo, err = stringField(table, luaFieldRepo); err != nil {
		return nil, err
	}
	if project.Tag, err = stringField(table, luaFieldTag); err != nil {
		return nil, err
	}
	if project.Version, err = stringField(table, luaFieldVersion); err != nil {
		return nil, err
	}
	if project.ChecksumsFile, err = stringField(table, luaFieldChecksumsFile); err != nil {
		return nil, err
	}
	if project.ChecksumsSignature, err = stringField(table, luaFieldChecksumsSigned); err != nil {
		return nil, err
	}

	if v := table.RawGetString(luaFieldBinaries); v != lua.LNil {
		t, ok := v.(*lua.LTable)
		if !ok {
			return nil, &ParseError{Message: "invalid 'binaries'", Detail: fmt.Sprintf("expected table, got %s", v.Type())}
		}
		project.Binaries = extractBinaries(t)
	}

	if v := table.RawGetString(luaFieldChecksums); v != lua.LNil {
		t, ok := v.(*lua.LTable)
		if !ok {
			return nil, &ParseError{Message: "invalid 'checksums'", Detail: fmt.Sprintf("expected table, got %s", v.Type())}
		}
		checksums, err := extractChecksums(t)
		if err != nil {
			return nil, err
		}
		project.Checksums = checksums
	}

	project.applyDefaults()
	if err := project.Validate(); err != nil {
		return nil, &ParseError{
			Message: "config validation failed",
			Detail:  err.Error(),
		}
	}
	return project, nil
}

func stringField(table *lua.LTable, name string) (string, error) {
	switch v := table.RawGetString(name).(type) {
	case *lua.LNilType:
		return "", nil
	case lua.LString:
		return string(v), nil
	default:
		return "", &ParseError{
			Message: fmt.Sprintf("invalid '%s'", name),
			Detail:  fmt.Sprintf("expected string, got %s", v.Type()),
		}
	}
}

// extractBinaries reads the array part in order. Holes left by
// platform.when(...) and non-string values are skipped.
func extractBinaries(table *lua.LTable) []string {
	var binaries []string
	for i := 1; i <= table.MaxN(); i++ {
		if s, ok := table.RawGetInt(i).(lua.LString); ok {
			binaries = append(binaries, string(s))
		}
	}
	return binaries
}

func extractChecksums(table *lua.LTable) (*Checksums, error) {
	algorithm, err := stringField(table, luaFieldAlgorithm)
	if err != nil {
		return nil, err
	}
	checksums := &Checksums{
		Algorithm: algorithm,
		Binaries:  make(map[string]map[string]string),
	}

	binaries, ok := table.RawGetString(luaFieldBinaries).(*lua.LTable)
	if !ok {
		return nil, &ParseError{Message: "invalid 'checksums'", Detail: "missing 'binaries' table"}
	}

	var parseErr error
	binaries.ForEach(func(key, value lua.LValue) {
		if parseErr != nil {
			return
		}
		pairs, ok := value.(*lua.LTable)
		if key.Type() != lua.LTString || !ok {
			parseErr = &ParseError{Message: "invalid 'checksums.binaries'", Detail: fmt.Sprintf("entry %s is not a name = { pair = digest } table", key)}
			return
		}
		digests := make(map[string]string)
		pairs.ForEach(func(pair, digest lua.LValue) {
			if pair.Type() != lua.LTString || digest.Type() != lua.LTString {
				parseErr = &ParseError{Message: "invalid 'checksums.binaries'", Detail: fmt.Sprintf("%s: digests must be strings keyed by platform-arch", key)}
				return
			}
			digests[pair.String()] = digest.String()
		})
		checksums.Binaries[key.String()] = digests
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return checksums, nil
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
