package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fim-go/internal/app"
	"fim-go/internal/config"
	"fim-go/internal/fs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a FIMApp for operation, applying
// the walk flags of cmd. The caller must defer closeApp.
func newApp(cmd *cobra.Command, operation string, progress bool) (*app.FIMApp, *progressSpinner, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := app.LoadConfig(defaults)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}

	opts := app.Options{DBPath: dbFlag}
	if f := cmd.Flags().Lookup("exclude"); f != nil {
		opts.Exclude = fs.SplitList(f.Value.String())
	}
	opts.DontExcludeDB, _ = cmd.Flags().GetBool("dont-exclude-db")
	opts.Overwrite, _ = cmd.Flags().GetBool("overwrite")

	var sp *progressSpinner
	if progress {
		sp = newProgressSpinner(cmd.ErrOrStderr(), operation)
		if sp != nil {
			opts.Progress = sp.update
		}
	}

	a, err := app.NewFIMApp(cmd.Context(), cfg, operation, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, sp, nil
}

// closeApp closes a and reports a close failure unless the command
// already failed.
func closeApp(a *app.FIMApp, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

func pathsFlag(cmd *cobra.Command) []string {
	raw, _ := cmd.Flags().GetString("path")
	return fs.SplitList(raw)
}

var dbFlag string

var rootCmd = &cobra.Command{
	Use:           "fim",
	Short:         "File integrity monitor",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Record a new snapshot of the given paths",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, sp, err := newApp(cmd, app.OpCreate, true)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		sp.start()
		counts, err := a.Create(cmd.Context(), pathsFlag(cmd))
		sp.stop()
		if err != nil {
			return fmt.Errorf("create failed: %w", err)
		}
		printCounts(cmd, "create", counts)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Bring the snapshot in line with the filesystem",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, sp, err := newApp(cmd, app.OpUpdate, true)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		sp.start()
		counts, err := a.Update(cmd.Context(), pathsFlag(cmd))
		sp.stop()
		if err != nil {
			return fmt.Errorf("update failed: %w", err)
		}
		printCounts(cmd, "update", counts)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the filesystem against the snapshot",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		compareTime, _ := cmd.Flags().GetBool("compare-time")

		a, sp, err := newApp(cmd, "check", true)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		sp.start()
		counts, err := a.Check(cmd.Context(), pathsFlag(cmd), compareTime)
		sp.stop()
		if err != nil {
			return fmt.Errorf("check failed: %w", err)
		}
		printCounts(cmd, "check", counts)
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the snapshot against a baseline snapshot (--db2)",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		compareTime, _ := cmd.Flags().GetBool("compare-time")
		baseline, _ := cmd.Flags().GetString("db2")

		a, _, err := newApp(cmd, "compare", false)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		counts, err := a.Compare(cmd.Context(), baseline, compareTime)
		if err != nil {
			return fmt.Errorf("compare failed: %w", err)
		}
		printCounts(cmd, "compare", counts)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every recorded entry",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, _, err := newApp(cmd, "list", false)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		counts, err := a.List(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s entries in %s\n", commaCount(counts.Processed), a.StorePath())
		return nil
	},
}

var reputationCmd = &cobra.Command{
	Use:   "reputation",
	Short: "Look up every recorded file hash with the hashlookup service",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cachePath, _ := cmd.Flags().GetString("cache")

		a, _, err := newApp(cmd, "reputation", false)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		counts, err := a.Reputation(cmd.Context(), cachePath)
		if err != nil {
			return fmt.Errorf("reputation check failed: %w", err)
		}
		fmt.Printf("queried %s hashes: %s known, %s unknown, %s failed\n",
			commaCount(counts.Queried), commaCount(counts.Found), commaCount(counts.NotFound), commaCount(counts.Failed))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recorded create and update runs",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, _, err := newApp(cmd, "history", false)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		for _, r := range runs {
			printRun(cmd, r)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults.BaseDir)
		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := app.LoadConfig(defaults)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s (%s)\n", cfg.Database.Path, cfg.Database.Type)
		fmt.Printf("Cache:      %s\n", cfg.Reputation.CachePath)
		fmt.Printf("Endpoint:   %s\n", cfg.Reputation.Endpoint)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage baseline encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the baseline encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return err
		}
		cfg, err := app.LoadConfig(defaults)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		pass, err := readNewPassphrase(cmd)
		if err != nil {
			return err
		}
		recipient, err := app.InitKeys(cfg, pass)
		if err != nil {
			return err
		}
		fmt.Printf("Keys written to %s\n", filepath.Dir(cfg.Encryption.PublicKeyPath))
		if recipient != "" {
			fmt.Printf("Public key: %s\n", recipient)
		}
		return nil
	},
}

// baseline command
var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Archive and restore the snapshot via the vault",
}

var baselinePushCmd = &cobra.Command{
	Use:   "push",
	Short: "Archive the snapshot to the vault",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, _, err := newApp(cmd, app.OpBaselinePush, false)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		version, err := a.PushBaseline(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Archived baseline version %d\n", version)
		return nil
	},
}

var baselinePullCmd = &cobra.Command{
	Use:   "pull DEST",
	Short: "Restore the archived snapshot to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return err
		}
		cfg, err := app.LoadConfig(defaults)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		dest, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		start := time.Now()
		version, err := app.PullBaseline(cmd.Context(), cfg, dest, func() (string, error) {
			return readPassphrase(cmd, "Passphrase: ")
		})
		if err != nil {
			return err
		}
		fmt.Printf("Restored baseline version %d to %s (%s)\n", version, dest, sizeOf(dest))
		fmt.Printf("Run `fim compare --db2 %s` to check the local snapshot against it (took %s)\n",
			dest, time.Since(start).Truncate(time.Millisecond))
		return nil
	},
}

func addWalkFlags(c *cobra.Command) {
	c.Flags().String("path", "", "Comma separated list of roots (default: scan.paths)")
	c.Flags().String("exclude", "", "Comma separated list of paths to skip")
	c.Flags().Bool("dont-exclude-db", false, "Also record the snapshot database files")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Snapshot database (default: database.path, files_data.db)")

	addWalkFlags(createCmd)
	createCmd.Flags().Bool("overwrite", false, "Replace an existing snapshot database")
	addWalkFlags(updateCmd)
	addWalkFlags(checkCmd)
	checkCmd.Flags().Bool("compare-time", false, "Report modification-time-only changes")

	compareCmd.Flags().String("db2", "", "Baseline snapshot database")
	compareCmd.Flags().Bool("compare-time", false, "Report modification-time-only changes")
	compareCmd.MarkFlagRequired("db2")

	reputationCmd.Flags().String("cache", "", "Reputation cache directory (default: reputation.cache_path)")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	keysCmd.AddCommand(keysInitCmd)
	baselineCmd.AddCommand(baselinePushCmd)
	baselineCmd.AddCommand(baselinePullCmd)

	rootCmd.AddCommand(createCmd, updateCmd, checkCmd, compareCmd, listCmd, reputationCmd, historyCmd)
	rootCmd.AddCommand(configCmd, keysCmd, baselineCmd)
}
