package syncer

import (
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/aptlyctl/aptlyctl/internal/aptly"
	"github.com/aptlyctl/aptlyctl/internal/notify"
)

const (
	defaultKeepLast = 5
	runLogFilename  = "sync.log"
)

// RepoConfig is an auxiliary struct for Config holding per-repository
// overrides. Repositories absent from the map use the defaults.
type RepoConfig struct {
	// Distribution published by "publish switch"; defaults to the
	// repository name.
	Distribution string `toml:"distribution,omitempty"`

	// Merge publishes a merge of the two newest snapshots instead of the
	// plain snapshot.
	Merge bool `toml:"merge,omitempty"`
}

// MailConfig holds SMTP settings and the notification addresses.
type MailConfig struct {
	Host       string   `toml:"host"`
	Port       int      `toml:"port"`
	From       string   `toml:"from"`
	Username   string   `toml:"username,omitempty"`
	Password   string   `toml:"password,omitempty"`
	Recipients []string `toml:"recipients"`
	Admin      string   `toml:"admin"`
}

// SMTP converts the mail settings for the notify package.
func (mailConfig *MailConfig) SMTP() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     mailConfig.Host,
		Port:     mailConfig.Port,
		From:     mailConfig.From,
		Username: mailConfig.Username,
		Password: mailConfig.Password,
	}
}

// PublishConfig holds signing settings for publish operations.
type PublishConfig struct {
	GPGKey string `toml:"gpg_key,omitempty"`
}

// RetentionConfig defines the snapshot retention window.
type RetentionConfig struct {
	KeepLast int `toml:"keep_last"`
}

// LogConfig represents slog configuration options.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`

	// Dir, when set, receives the run log (sync.log) and the
	// per-repository update logs (<repo>-updates.log).
	Dir string `toml:"dir,omitempty"`
}

func (logConfig *LogConfig) handler(w io.Writer) (slog.Handler, error) {
	var level slog.Level
	switch strings.ToLower(logConfig.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, errors.New("invalid log level: " + logConfig.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(logConfig.Format) {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "plain", "", "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, errors.New("invalid log format: " + logConfig.Format)
	}
}

// Apply configures the global slog logger to write to stderr.
func (logConfig *LogConfig) Apply() error {
	handler, err := logConfig.handler(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ApplyRunLog directs slog output for a sync run: the append-only run log
// under Dir when configured, plus stderr unless quiet. Quiet suppresses the
// console only; file logging is unaffected. The returned closer owns the
// log file.
func (logConfig *LogConfig) ApplyRunLog(quiet bool) (io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if logConfig.Dir != "" {
		if err := os.MkdirAll(logConfig.Dir, 0750); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}
		logPath := filepath.Join(logConfig.Dir, runLogFilename)
		file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640) // #nosec G302,G304 - operator log file under the configured directory
		if err != nil {
			return nil, errors.Wrap(err, "open run log")
		}
		writers = append(writers, file)
		closer = file
	}
	if !quiet {
		writers = append(writers, os.Stderr)
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	handler, err := logConfig.handler(w)
	if err != nil {
		closer.Close()
		return nil, err
	}
	slog.SetDefault(slog.New(handler))
	return closer, nil
}

// Config is a struct to read TOML configurations.
//
// Use https://github.com/BurntSushi/toml as follows:
//
//	config := syncer.NewConfig()
//	md, err := toml.DecodeFile("/path/to/aptlyctl.toml", config)
//	if err != nil {
//	    ...
//	}
type Config struct {
	AptlyPath string                 `toml:"aptly_path,omitempty"`
	Log       LogConfig              `toml:"log"`
	Mail      MailConfig             `toml:"mail"`
	Publish   PublishConfig          `toml:"publish"`
	Retention RetentionConfig        `toml:"retention"`
	Repos     map[string]*RepoConfig `toml:"repos"`
}

// NewConfig creates Config with default values.
func NewConfig() *Config {
	return &Config{
		Retention: RetentionConfig{KeepLast: defaultKeepLast},
	}
}

// Check validates the configuration.
func (c *Config) Check() error {
	if c.AptlyPath != "" && !path.IsAbs(c.AptlyPath) {
		return errors.New("aptly_path must be an absolute path")
	}
	if c.Log.Dir != "" && !path.IsAbs(c.Log.Dir) {
		return errors.New("log dir must be an absolute path")
	}
	if _, err := c.Log.handler(io.Discard); err != nil {
		return err
	}
	if c.Retention.KeepLast < 0 {
		return errors.New("retention keep_last must not be negative")
	}
	if (len(c.Mail.Recipients) > 0 || c.Mail.Admin != "") && c.Mail.Host == "" {
		return errors.New("mail host is required when recipients are configured")
	}
	if (len(c.Mail.Recipients) > 0 || c.Mail.Admin != "") && c.Mail.From == "" {
		return errors.New("mail from address is required when recipients are configured")
	}
	for repo := range c.Repos {
		if !aptly.IsValidID(repo) {
			return errors.New("invalid repository ID: " + repo)
		}
	}
	return nil
}

// Distribution returns the published distribution for a repository.
func (c *Config) Distribution(repo string) string {
	if repoConfig, ok := c.Repos[repo]; ok && repoConfig.Distribution != "" {
		return repoConfig.Distribution
	}
	return repo
}

// MergeEnabled reports whether a repository is in the configured merge set.
func (c *Config) MergeEnabled(repo string) bool {
	repoConfig, ok := c.Repos[repo]
	return ok && repoConfig.Merge
}
