package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// version is the application version, set via ldflags.
var version = "dev"

// newRootCmd builds the command with its own viper instance, so that every
// invocation (and every test) starts from a clean configuration.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "htrmeta [PATTERN...]",
		Short: "Compute HTR-United metadata (characters, lines, regions) for XML transcriptions",
		Long: `htrmeta counts characters, lines and regions in ALTO and PAGE transcription
files, grouped by glob patterns, and writes JSON files and an optional
GitHub Actions environment file for badge publishing.

Positional patterns form one group named after the repository (see --name);
use --group NAME=PATTERN[,PATTERN...] for more groups. Patterns support **.`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfigFile(v, cfgFile); err != nil {
				return err
			}
			groupFlags, err := cmd.Flags().GetStringArray("group")
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v, groupFlags, args)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if used := v.ConfigFileUsed(); used != "" {
				logger.WithField("file", used).Debug("Using config file")
			}
			return run(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is htrmeta.toml in . or $HOME/.config/htrmeta)")

	// Input
	flags.StringArrayP("group", "g", nil, "Named group NAME=PATTERN[,PATTERN...] (repeatable)")
	flags.StringP("name", "n", "", "Name of the group formed by positional patterns (default: root directory name)")
	flags.String("root", ".", "Directory patterns are resolved against")
	flags.String("repo", "", "Clone this git repository and use it as the root")
	flags.String("format", formatAuto, "Transcription format: auto, alto, page or a name from --schema-file")
	flags.String("schema-file", "", "YAML file with additional format definitions (default: schemas.yml if present)")
	flags.BoolP("hidden", "H", false, "Include hidden files and directories")
	flags.Bool("no-ignore", false, "Don't respect the root .gitignore")
	flags.Bool("by-directory", false, "Split every group by parent directory")

	// Counting
	flags.StringSliceP("metrics", "m", []string{"chars", "lines", "regions"}, "Metric families to output: chars, lines, regions, files")
	flags.Bool("chars-no-spaces", false, "Drop all whitespace before counting characters")
	flags.Bool("no-normalize", false, "Count combining marks as written instead of normalizing to NFC")
	flags.IntP("threads", "t", 0, "Number of parser workers (0 for auto)")

	// Output
	flags.StringP("out-dir", "o", ".", "Directory for the <metric>.json files")
	flags.Bool("combined", false, "Also write "+combinedFileName+" with every metric family")
	flags.String("total-key", "total", "Key of the grand total in JSON files when there are several groups")
	flags.Bool("github-envs", false, "Write KEY=VALUE lines for GitHub Actions")
	flags.String("env-file", "envs.txt", "Path of the environment file")
	flags.String("env-prefix", "HTRUNITED", "Prefix of environment variable names")
	flags.String("catalog", "", "Write the HTR-United catalog volume block (YAML) to this file")
	flags.BoolP("clipboard", "c", false, "Copy the catalog volume block to the clipboard")
	flags.String("pdf", "", "Save a PDF summary to this file")
	flags.BoolP("quiet", "q", false, "Don't print the summary tables")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error")

	// Flags map to snake_case keys, shared with the config file and HTRMETA_* variables.
	// --group is read from the flag set directly: viper would split its values on commas.
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "group" {
			return
		}
		_ = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return cmd
}

// readConfigFile loads the config file into v. A missing default config
// file is not an error; a broken one is.
func readConfigFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "htrmeta"))
		}
		v.SetConfigName("htrmeta")
		v.SetConfigType("toml")
	}

	v.SetEnvPrefix("HTRMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// newLogger builds the run's logger. Warnings about skipped files go to w.
func newLogger(level string, w io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return logger, nil
}

// run executes one complete metadata generation.
func run(ctx context.Context, cfg Config, logger *logrus.Logger, stdout io.Writer) error {
	if cfg.Repo != "" {
		dir, err := cloneGitRepo(ctx, cfg.Repo, logger)
		if err != nil {
			return err
		}
		defer func() {
			logger.WithField("dir", dir).Debug("Cleaning up temporary directory")
			_ = os.RemoveAll(dir)
		}()
		cfg.Root = dir
	}

	schemaFile := cfg.SchemaFile
	if schemaFile == "" {
		schemaFile = findSchemaFile()
	}
	var extra map[string]*Schema
	if schemaFile != "" {
		var err error
		if extra, err = loadSchemaFile(schemaFile); err != nil {
			return err
		}
		logger.WithField("file", schemaFile).Debug("Loaded schema definitions")
	}
	schemas, err := newSchemaSet(extra)
	if err != nil {
		return err
	}
	counting := countOptions{NoSpaces: cfg.CharsNoSpaces, NoNormalize: cfg.NoNormalize}
	parser, err := newParser(schemas, cfg.Format, counting)
	if err != nil {
		return err
	}

	groups, err := resolveGroups(cfg.Root, cfg.Groups, matchOptions{Hidden: cfg.Hidden, NoIgnore: cfg.NoIgnore})
	if err != nil {
		return err
	}
	if cfg.ByDirectory {
		groups = splitByDirectory(cfg.Root, groups)
		names := make([]string, len(groups))
		for i, g := range groups {
			names[i] = g.Name
		}
		if err := validateGroupNames(names, cfg.TotalKey); err != nil {
			return err
		}
	}
	for _, g := range groups {
		if len(g.Files) == 0 {
			logger.WithFields(logrus.Fields{"group": g.Name, "patterns": g.Patterns}).Warn("Group matched no files")
		}
	}

	bundle, err := newAggregator(parser, logger, cfg.Threads).Run(ctx, groups)
	if err != nil {
		return err
	}

	written, err := writeJSONOutputs(cfg.OutDir, bundle, cfg.Metrics, cfg.TotalKey, cfg.Combined)
	if err != nil {
		return err
	}
	for _, p := range written {
		logger.WithField("file", p).Info("Wrote JSON")
	}
	if cfg.GithubEnvs {
		if err := writeEnvFile(cfg.EnvFile, envValues(bundle, cfg.Metrics, cfg.EnvPrefix)); err != nil {
			return err
		}
		logger.WithField("file", cfg.EnvFile).Info("Wrote environment file")
	}

	catalog, err := catalogYAML(bundle.Total)
	if err != nil {
		return err
	}
	catalog = annotateCatalog(catalog, counting.convention())
	if cfg.Catalog != "" {
		if err := os.WriteFile(cfg.Catalog, catalog, 0o644); err != nil {
			return fmt.Errorf("error writing catalog %s: %w", cfg.Catalog, err)
		}
	}
	if cfg.Clipboard {
		if err := copyCatalog(catalog); err != nil {
			logger.WithError(err).Warn("Could not copy the catalog block")
		}
	}
	if cfg.PDF != "" {
		if err := generatePDF(bundle, cfg.Metrics, catalog, cfg.PDF); err != nil {
			return err
		}
		logger.WithField("file", cfg.PDF).Info("Wrote PDF")
	}
	if !cfg.Quiet {
		printReport(stdout, bundle, cfg.Metrics, catalog)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
