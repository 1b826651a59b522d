// Package main implements the aptlyctl command-line tool for operating
// aptly-managed Debian repositories.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aptlyctl/aptlyctl/internal/aptly"
	"github.com/aptlyctl/aptlyctl/internal/notify"
	"github.com/aptlyctl/aptlyctl/internal/search"
	"github.com/aptlyctl/aptlyctl/internal/syncer"
)

const (
	defaultConfigPath = "/etc/aptlyctl/aptlyctl.toml"
)

var (
	// Build information - can be set via build flags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "aptlyctl",
	Short: "Operate aptly-managed Debian repositories",
	Long: `aptlyctl wraps the aptly CLI for day-to-day repository operations:
searching snapshots for packages and running the full mirror update,
snapshot, merge, publish and retention cycle.`,
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search all snapshots for packages by name",
	Long: `Search every snapshot for packages matching the pattern.

A pattern without a wildcard matches the package name exactly, so "nginx"
does not match "nginx-common". A pattern ending in "*" matches every
package sharing the prefix. Wildcards anywhere else are rejected.

Examples:
  aptlyctl search nginx
  aptlyctl search nginx*

Exits 0 if at least one package matched, 1 otherwise.`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update, snapshot, publish and prune repositories",
	Long: `Runs the full cycle for each target repository: update the mirror,
snapshot it when the update fetched new packages, optionally merge the two
newest snapshots, switch the published distribution to the result, and
prune snapshots beyond the retention window. A summary mail is sent at the
end of the run; fatal errors alert the admin address immediately.

Usage:
  # Process every mirror known to aptly
  aptlyctl sync

  # Process specific repositories
  aptlyctl sync -r ubuntu-main,security

  # Send the summary elsewhere for this run
  aptlyctl sync -m oncall@example.com

  # Log what would happen without touching aptly
  aptlyctl sync --dry-run

  # Suppress console output (log file and mail are unaffected)
  aptlyctl sync --quiet`,
	Run: runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including build details",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("aptlyctl %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Validate the configuration file and report any issues.`,
	Run:   runValidate,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")

	syncCmd.Flags().StringSliceP("repos", "r", nil, "comma-separated repositories to process (default: all mirrors)")
	syncCmd.Flags().StringSliceP("mail", "m", nil, "comma-separated summary recipients (default: configured recipients)")
	syncCmd.Flags().BoolP("quiet", "q", false, "suppress console output; log file and mail are unaffected")
	syncCmd.Flags().BoolP("dry-run", "d", false, "log what would happen without mutating aptly state")
}

// formatError returns a human-friendly error message, optionally with stack trace
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err)
	}

	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	return err.Error()
}

// analyzeUndecoded examines undecoded TOML keys and provides helpful suggestions
func analyzeUndecoded(undecoded []toml.Key) (suggestions []string, unknown []string) {
	repoGroups := make(map[string]int)

	for _, key := range undecoded {
		keyStr := key.String()

		// Check for the common "repo" vs "repos" typo
		if strings.HasPrefix(keyStr, "repo.") && !strings.HasPrefix(keyStr, "repos.") {
			parts := strings.Split(keyStr, ".")
			if len(parts) >= 2 {
				rootSection := parts[0] + "." + parts[1]
				repoGroups[rootSection]++
			}
		} else {
			unknown = append(unknown, keyStr)
		}
	}

	for rootSection, count := range repoGroups {
		correctedSection := strings.Replace(rootSection, "repo.", "repos.", 1)
		if count == 1 {
			suggestions = append(suggestions, fmt.Sprintf("Section '%s' should be '%s'", rootSection, correctedSection))
		} else {
			suggestions = append(suggestions, fmt.Sprintf("Section '%s' should be '%s' (affects %d subsections)", rootSection, correctedSection, count))
		}
	}

	return suggestions, unknown
}

// formatUndecodedError builds a user-friendly error message for undecoded TOML keys
func formatUndecodedError(undecoded []toml.Key) string {
	suggestions, unknown := analyzeUndecoded(undecoded)

	var errorMsg strings.Builder
	if len(suggestions) > 0 {
		errorMsg.WriteString("configuration contains sections that don't match expected structure:\n")
		for _, suggestion := range suggestions {
			errorMsg.WriteString("  • " + suggestion + "\n")
		}
		errorMsg.WriteString("\nNote: Configuration section names are case-sensitive and must match exactly.")
	}

	if len(unknown) > 0 {
		if errorMsg.Len() > 0 {
			errorMsg.WriteString("\n\nAdditionally, found unknown sections: ")
		} else {
			errorMsg.WriteString("configuration contains unknown sections: ")
		}
		errorMsg.WriteString(fmt.Sprintf("%v", unknown))
		errorMsg.WriteString("\nThese sections don't match any expected configuration structure.")
	}

	return errorMsg.String()
}

// loadConfig decodes and validates the configuration file, applying the log
// settings and any command-line log level override.
func loadConfig() (*syncer.Config, error) {
	config := syncer.NewConfig()
	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Error("configuration file not found", "path", configPath)
			slog.Info("Please create a configuration file at the default location or specify one with the --config flag.")
			return nil, err
		}
		return nil, err
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		errorMsg := formatUndecodedError(undecoded)
		slog.Error("configuration validation failed", "error", errorMsg, "path", configPath)
		return nil, errors.New("configuration validation failed")
	}

	if logLevel != "" {
		config.Log.Level = logLevel
	}
	if err := config.Log.Apply(); err != nil {
		return nil, err
	}

	if err := config.Check(); err != nil {
		return nil, err
	}
	return config, nil
}

// requireRoot enforces elevated execution before any aptly call.
func requireRoot() error {
	if os.Geteuid() != 0 {
		return errors.New("this command must be run as root")
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	pattern, err := search.Compile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		_ = cmd.Usage()
		os.Exit(1)
	}

	config, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	if err := requireRoot(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	client := aptly.NewExecClient(config.AptlyPath, config.Publish.GPGKey)
	results, err := search.Run(context.Background(), client, pattern)
	if err != nil {
		slog.Error("search failed", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Printf("%s not found in any snapshot\n", pattern)
		os.Exit(1)
	}

	for _, result := range results {
		fmt.Printf("%s:\n", color.GreenString(result.Snapshot))
		for _, ref := range result.Refs {
			fmt.Printf("  %s\n", ref)
		}
	}
}

func runSync(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")
	repos, _ := cmd.Flags().GetStringSlice("repos")
	recipients, _ := cmd.Flags().GetStringSlice("mail")
	quiet, _ := cmd.Flags().GetBool("quiet")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	config, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	if err := requireRoot(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	closer, err := config.Log.ApplyRunLog(quiet)
	if err != nil {
		slog.Error("failed to set up run log", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}
	defer func() {
		if err := closer.Close(); err != nil {
			slog.Warn("failed to close run log", "error", err)
		}
	}()

	client := aptly.NewExecClient(config.AptlyPath, config.Publish.GPGKey)

	var notifier notify.Notifier
	if config.Mail.Host != "" {
		notifier = notify.NewSMTPNotifier(config.Mail.SMTP())
	}

	opts := syncer.Options{
		Repos:      repos,
		Recipients: recipients,
		Quiet:      quiet,
		DryRun:     dryRun,
	}
	if err := syncer.Run(config, client, notifier, opts); err != nil {
		slog.Error("sync run failed", "error", formatError(err, verboseErrors))
		if !verboseErrors {
			slog.Info("run with --verbose-errors for detailed stack traces")
		}
		os.Exit(1)
	}
}

func runValidate(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config := syncer.NewConfig()
	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Error("configuration file not found", "path", configPath)
			os.Exit(1)
		}
		slog.Error("failed to decode config file", "error", formatError(err, verboseErrors), "path", configPath)
		os.Exit(1)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		errorMsg := formatUndecodedError(undecoded)
		slog.Error("configuration validation failed", "error", errorMsg, "path", configPath)
		os.Exit(1)
	}

	var validationErrors []error

	if err := config.Log.Apply(); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "log config"))
	}

	if err := config.Check(); err != nil {
		validationErrors = append(validationErrors, errors.Wrap(err, "global config"))
	}

	for repo := range config.Repos {
		if !aptly.IsValidID(repo) {
			validationErrors = append(validationErrors, errors.New("invalid repository ID: "+repo))
		}
	}

	if len(validationErrors) > 0 {
		slog.Error("the toml configuration file is not valid")
		for _, err := range validationErrors {
			slog.Error(err.Error())
		}
		os.Exit(1)
	}

	slog.Info("the toml configuration file passes validation checks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
