package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/bundle"
)

// app carries the configuration shared by every subcommand.
type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "bundle",
		Short: "Package directory trees into single, optionally encrypted, container files",
		Long: `bundle packages a directory tree into one compressed container file,
optionally encrypted with a password, and restores it later.

Settings can also come from a config file (--config) or from BUNDLE_*
environment variables, e.g. BUNDLE_PASSWORD or BUNDLE_IV_SEED.

Examples:
  bundle build ./dist -o app.bundle --password secret
  bundle list app.bundle --password secret
  bundle extract app.bundle config/app.json ./app.json --password secret
  bundle sync app.bundle /srv/app --password secret`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, toml or json)")
	pf.String("password", "", "container password; enables encryption")
	pf.String("iv-seed", "", "derive the IV from this seed instead of the password")
	pf.String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(a.buildCmd(), a.listCmd(), a.extractCmd(), a.syncCmd())
	return root
}

// init loads configuration from flags, the environment and an optional
// config file, in that order of precedence, and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix("BUNDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "warn")
	v.SetDefault("compression", bundle.CompressionZstd.String())
	v.SetDefault("level", bundle.LevelDefault.String())
	v.SetDefault("workers", 1)

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	level, err := log.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	handler := log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix:          "bundle",
		Level:           level,
		ReportTimestamp: true,
	})
	a.logger = slog.New(handler)
	return nil
}

// builderOptions translates configuration into builder options.
func (a *app) builderOptions() ([]bundle.BuilderOption, error) {
	c, err := parseCompression(a.v.GetString("compression"))
	if err != nil {
		return nil, err
	}
	l, err := parseLevel(a.v.GetString("level"))
	if err != nil {
		return nil, err
	}

	opts := []bundle.BuilderOption{
		bundle.BuildWithCompression(c),
		bundle.BuildWithLevel(l),
		bundle.BuildWithInMemory(a.v.GetBool("in-memory")),
		bundle.BuildWithLogger(a.logger),
	}
	if pw := a.v.GetString("password"); pw != "" {
		opts = append(opts, bundle.BuildWithPassword(pw))
	}
	if seed := a.v.GetString("iv-seed"); seed != "" {
		opts = append(opts, bundle.BuildWithIVSeed(seed))
	}
	return opts, nil
}

// newReader opens a reader with the configured key material.
func (a *app) newReader(path string) (*bundle.Reader, error) {
	opts := []bundle.ReaderOption{bundle.ReadWithLogger(a.logger)}
	if pw := a.v.GetString("password"); pw != "" {
		opts = append(opts, bundle.ReadWithPassword(pw))
	}
	if seed := a.v.GetString("iv-seed"); seed != "" {
		opts = append(opts, bundle.ReadWithIVSeed(seed))
	}
	return bundle.NewReader(path, opts...)
}

func parseCompression(s string) (bundle.Compression, error) {
	for _, c := range []bundle.Compression{bundle.CompressionZstd, bundle.CompressionGzip} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown compression %q (want zstd or gzip)", bundle.ErrInvalidConfig, s)
}

func parseLevel(s string) (bundle.Level, error) {
	for _, l := range []bundle.Level{bundle.LevelFastest, bundle.LevelDefault, bundle.LevelBetter, bundle.LevelBest} {
		if strings.EqualFold(s, l.String()) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown level %q (want fastest, default, better or best)", bundle.ErrInvalidConfig, s)
}
