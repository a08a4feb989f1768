package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/binary"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/config"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/download"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/logger"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/platform"
)

// installFlags override values from the project file.
type installFlags struct {
	repo     string
	tag      string
	release  string
	binaries []string
	platform string
	arch     string
}

// apply overlays the flags on project. A version that only mirrored the
// project's tag follows a new --tag.
func (f installFlags) apply(project *config.Project) error {
	if f.repo != "" {
		project.Repo = f.repo
	}
	if f.tag != "" {
		if project.Version == project.Tag {
			project.Version = f.tag
		}
		project.Tag = f.tag
	}
	if f.release != "" {
		project.Version = f.release
	}
	if len(f.binaries) > 0 {
		project.Binaries = f.binaries
	}
	return project.Validate()
}

func (a *app) runInstall(ctx context.Context) error {
	s := a.settings

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	detector, err := platform.Override(platform.NewDetector(), a.install.platform, a.install.arch)
	if err != nil {
		return err
	}

	project, err := a.loadProject(ctx, detector)
	if err != nil {
		return err
	}

	info, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detect platform: %w", err)
	}

	checksums, err := a.loadChecksums(project)
	if err != nil {
		return err
	}

	cacheRoot, err := s.CacheRoot()
	if err != nil {
		return err
	}

	client := download.NewClient(
		download.WithMaxRedirects(s.MaxRedirects),
		download.WithHeaderTimeout(s.HeaderTimeout),
		download.WithLogger(logger.New("download").Entry()),
	)
	manager, err := binary.NewManager(binary.Config{
		CacheRoot:      cacheRoot,
		BinDir:         s.BinPath(),
		Host:           s.Host,
		Client:         client,
		MaxArchiveSize: s.MaxArchiveSize,
		Log:            logger.New("orchestrator").Entry(),
	})
	if err != nil {
		return err
	}

	opts := binary.Options{
		Repo:      project.Repo,
		Version:   binary.Version{Version: project.Version, Tag: project.Tag},
		Platform:  info.Token,
		Arch:      info.Arch,
		Binaries:  project.Binaries,
		Checksums: checksums,
	}

	a.log.WithFields(logrus.Fields{
		"repo":     opts.Repo,
		"tag":      opts.Version.Tag,
		"platform": opts.Platform,
		"arch":     opts.Arch,
		"binaries": strings.Join(opts.Binaries, ","),
		"verified": checksums != nil,
	}).Info("Installing Foundry")

	report, err := manager.Install(ctx, opts)
	if err != nil {
		return err
	}
	a.logReport(report)
	return nil
}

func (a *app) loadProject(ctx context.Context, detector platform.Detector) (*config.Project, error) {
	path := a.settings.ProjectPath()
	parser := config.NewParser(detector).WithLogger(logger.New("config").Entry())

	project, found, err := parser.ParseFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %s", path, config.FormatError(err, a.log.Logger.IsLevelEnabled(logrus.DebugLevel)))
	}
	if !found {
		a.log.WithField("path", path).Debug("No project file, using defaults")
	}

	if err := a.install.apply(project); err != nil {
		return nil, err
	}
	return project, nil
}

// loadChecksums combines the checksums file, after its signature checks out,
// with inline digests. Inline digests win.
func (a *app) loadChecksums(project *config.Project) (*binary.ChecksumSpec, error) {
	merged := project.Checksums

	if project.ChecksumsFile != "" {
		if project.ChecksumsSignature != "" {
			if err := a.verifyChecksumsFile(project); err != nil {
				return nil, err
			}
		}

		file, err := config.LoadChecksums(project.ChecksumsFile)
		if err != nil {
			return nil, err
		}
		merged, err = file.Merge(project.Checksums)
		if err != nil {
			return nil, err
		}
	}

	if merged == nil {
		a.log.Warn("No checksums configured, binaries will not be verified")
		return nil, nil
	}
	return &binary.ChecksumSpec{Algorithm: merged.Algorithm, Binaries: merged.Binaries}, nil
}

func (a *app) verifyChecksumsFile(project *config.Project) error {
	path := a.settings.KeyringPath()
	if path == "" {
		return fmt.Errorf("checksums_signature is set but no keyring is configured")
	}

	keyring, err := binary.LoadKeyring(path)
	if err != nil {
		return err
	}
	if err := binary.VerifySignature(keyring, project.ChecksumsFile, project.ChecksumsSignature); err != nil {
		return fmt.Errorf("checksums file %s: %w", project.ChecksumsFile, err)
	}

	a.log.WithFields(logrus.Fields{
		"file":      project.ChecksumsFile,
		"signature": project.ChecksumsSignature,
	}).Info("Checksums signature verified")
	return nil
}

func (a *app) logReport(report *binary.InstallReport) {
	a.log.WithFields(logrus.Fields{
		"url":        report.URL,
		"cache":      report.CacheDir,
		"from_cache": report.FromCache,
		"extracted":  len(report.Extracted),
	}).Info("Release ready")

	for _, b := range report.Installed {
		a.log.WithFields(logrus.Fields{
			"target":   b.Target,
			"strategy": b.Strategy.String(),
			"version":  b.Version,
		}).Info("Installed")
	}
}
