package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/config"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/wiring"
)

// cli porte l'état partagé par les sous-commandes (pas de globals).
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "vws",
		Short:         "Synchronise VRChat world metadata into a local store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", envOr("VWS_CONFIG", "vws.yaml"), "Fichier de configuration YAML (optionnel)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Niveau de log (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Format de log (json, console)")

	root.AddCommand(
		c.scrapeCmd(),
		c.refreshCmd(),
		c.loginCmd(),
		c.logoutCmd(),
		c.statusCmd(),
		c.listCmd(),
		versionCmd(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	config.LoadEnvFiles()
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	} else if cfg.LogFormat == "json" && isTerminal(os.Stderr) {
		cfg.LogFormat = "console"
	}
	c.cfg = cfg
	return nil
}

func (c *cli) container(cmd *cobra.Command) (*wiring.Container, error) {
	logger := wiring.NewLogger(c.cfg, "vws", cmd.ErrOrStderr())
	logger.Debug().Interface("config", c.cfg.Redacted()).Msg("config loaded")

	// Le prompt 2FA n'est proposé que sur un vrai terminal.
	return wiring.New(cmd.Context(), c.cfg, logger, wiring.Resolver(c.cfg, isTerminal(os.Stdin)))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Pas besoin de configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "vws %s", info.Version)
			if info.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", info.Commit)
			}
			if info.Date != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " built %s", info.Date)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
