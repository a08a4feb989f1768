package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/config"
	"github.com/ZebulonRouseFrantzich/foundryup/internal/logger"
)

// app carries state shared by the commands of one invocation.
type app struct {
	configFile string
	install    installFlags

	settings config.Settings
	log      *logrus.Entry
}

// settingsFlags maps settings keys to the persistent flags overriding them.
var settingsFlags = map[string]string{
	"cache_dir":    "cache-dir",
	"global_cache": "global-cache",
	"bin_dir":      "bin-dir",
	"project":      "project",
	"host":         "host",
	"keyring":      "keyring",
	"timeout":      "timeout",
	"log_level":    "log-level",
	"log_format":   "log-format",
	"log_file":     "log-file",
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "foundryup",
		Short: "Install Foundry toolchain binaries",
		Long: `foundryup downloads a Foundry release archive, extracts the requested
binaries into a content-addressed cache, verifies them and links them into
the project's bin directory.

Release, binaries and expected checksums are read from foundryup.lua when
present; flags override the project file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadSettings(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInstall(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "settings file (default: ~/.config/foundryup/config.yaml)")
	pf.String("cache-dir", "", "cache directory (overrides --global-cache)")
	pf.Bool("global-cache", true, "cache in the user cache directory instead of the project")
	pf.String("bin-dir", "", "install directory (default: .foundry/bin)")
	pf.String("project", "", "project file (default: foundryup.lua)")
	pf.String("host", "", "release host (default: https://github.com)")
	pf.String("keyring", "", "OpenPGP keyring used to verify checksums_signature")
	pf.Duration("timeout", 0, "overall time limit (default: 10m)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("log-file", "", "also write logs to this rotated file")

	f := root.Flags()
	f.StringVar(&a.install.repo, "repo", "", "GitHub repository (owner/name)")
	f.StringVar(&a.install.tag, "tag", "", "release tag")
	f.StringVar(&a.install.release, "release", "", "version embedded in archive names (default: the tag)")
	f.StringSliceVar(&a.install.binaries, "binaries", nil, "binaries to install (comma separated)")
	f.StringVar(&a.install.platform, "platform", "", "target platform: linux, darwin or win32")
	f.StringVar(&a.install.arch, "arch", "", "target architecture: amd64 or arm64")

	root.AddCommand(newCacheCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// loadSettings resolves settings once per invocation and initialises logging.
func (a *app) loadSettings(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}

	pf := cmd.Root().PersistentFlags()
	for key, name := range settingsFlags {
		if err := v.BindPFlag(key, pf.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	s, err := config.LoadSettings(v, wd)
	if err != nil {
		return err
	}
	if err := logger.Init(s.Log); err != nil {
		return err
	}

	a.settings = s
	a.log = logger.New("cli").Entry()
	if used := v.ConfigFileUsed(); used != "" {
		a.log.WithField("path", used).Debug("Loaded settings file")
	}
	return nil
}
