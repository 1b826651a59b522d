// Package syncer orchestrates the mirror update, snapshot, merge, publish
// and retention cycle across repositories.
package syncer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/aptlyctl/aptlyctl/internal/aptly"
	"github.com/aptlyctl/aptlyctl/internal/notify"
)

const (
	lockFilename = ".aptlyctl.lock"

	// aptly prints one such line per fetched file; its absence means the
	// mirror had nothing new.
	downloadMarker = "Downloading "
)

// Options selects what a sync run does.
type Options struct {
	// Repos lists the repositories to process; empty means every mirror
	// known to aptly.
	Repos []string

	// Recipients overrides the configured summary recipients.
	Recipients []string

	Quiet  bool
	DryRun bool
}

// Orchestrator runs the per-repository state machine. Repositories are
// processed strictly sequentially; aptly serializes its own state and the
// run lock keeps other invocations out.
type Orchestrator struct {
	client   aptly.Client
	config   *Config
	notifier notify.Notifier
	buf      *notify.Buffer

	quiet    bool
	dryRun   bool
	progress bool
	now      func() time.Time
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(config *Config, client aptly.Client, notifier notify.Notifier, quiet, dryRun bool) *Orchestrator {
	return &Orchestrator{
		client:   client,
		config:   config,
		notifier: notifier,
		buf:      notify.NewBuffer(),
		quiet:    quiet,
		dryRun:   dryRun,
		now:      time.Now,
	}
}

// record logs a line and appends it to the mail buffer. The buffer is
// unaffected by quiet mode.
func (o *Orchestrator) record(line string) {
	o.buf.Add(line)
	slog.Info(line)
}

// Run processes the repositories one by one. The first fatal error aborts
// the run and alerts the admin address; advisory problems are recorded and
// processing continues.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	repos := opts.Repos
	if len(repos) == 0 {
		all, err := o.client.ListMirrors(ctx)
		if err != nil {
			wrapped := errors.Wrap(err, "list mirrors")
			o.alert(wrapped)
			return wrapped
		}
		repos = all
	}

	for _, repo := range repos {
		if !aptly.IsValidID(repo) {
			err := errors.New("invalid repository ID: " + repo)
			o.alert(err)
			return err
		}
	}

	var bar *pb.ProgressBar
	if o.progress && len(repos) > 0 {
		bar = pb.StartNew(len(repos))
	}

	for _, repo := range repos {
		if err := o.syncRepo(ctx, repo); err != nil {
			if bar != nil {
				bar.Finish()
			}
			o.alert(err)
			return err
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if o.dryRun {
		return nil
	}
	o.summarize(opts.Recipients)
	return nil
}

// syncRepo runs the update / detect / snapshot / merge / publish / prune
// sequence for one repository. Returned errors are fatal for the whole run.
func (o *Orchestrator) syncRepo(ctx context.Context, repo string) error {
	if o.dryRun {
		return o.dryRunRepo(ctx, repo)
	}

	o.record("updating mirror " + repo)
	out, err := o.client.UpdateMirror(ctx, repo)
	o.writeUpdatesLog(repo, out)
	if err != nil {
		return errors.Wrap(err, "update "+repo)
	}

	if !hasNewPackages(out) {
		o.record("no new packages for " + repo)
		o.prune(ctx, repo)
		return nil
	}

	name := aptly.SnapshotName(repo, o.now())
	if err := o.client.CreateSnapshot(ctx, name, repo); err != nil {
		return errors.Wrap(err, "snapshot "+repo)
	}
	o.record("created snapshot " + name)

	target := name
	if o.config.MergeEnabled(repo) {
		merged, err := o.merge(ctx, repo)
		if err != nil {
			return err
		}
		if merged != "" {
			target = merged
		}
	}

	distribution := o.config.Distribution(repo)
	if err := o.client.PublishSwitch(ctx, distribution, target); err != nil {
		return errors.Wrap(err, "publish "+repo)
	}
	o.record("published " + target + " to " + distribution)

	o.prune(ctx, repo)
	return nil
}

// merge merges the two newest snapshots of repo and returns the merged
// name. With fewer than two snapshots the merge is skipped with a warning
// and "" is returned.
func (o *Orchestrator) merge(ctx context.Context, repo string) (string, error) {
	all, err := o.client.ListSnapshots(ctx)
	if err != nil {
		return "", errors.Wrap(err, "merge "+repo)
	}

	own := aptly.SnapshotsFor(repo, all)
	if len(own) < 2 {
		o.record("merge skipped for " + repo + ": fewer than two snapshots exist")
		slog.Warn("merge skipped", "repo", repo, "snapshots", len(own))
		return "", nil
	}

	newer := own[len(own)-1]
	older := own[len(own)-2]
	merged := aptly.MergedName(newer)
	if err := o.client.MergeSnapshots(ctx, merged, newer, older); err != nil {
		return "", errors.Wrap(err, "merge "+repo)
	}
	o.record("merged " + older + " and " + newer + " into " + merged)
	return merged, nil
}

// prune deletes all but the newest keep-last snapshots of repo. Every
// failure here is advisory: it is recorded and processing continues.
func (o *Orchestrator) prune(ctx context.Context, repo string) {
	all, err := o.client.ListSnapshots(ctx)
	if err != nil {
		o.record("retention skipped for " + repo + ": " + err.Error())
		return
	}

	plan := planPrune(aptly.SnapshotsFor(repo, all), o.config.Retention.KeepLast)
	for _, name := range plan.Delete {
		if err := o.client.DropSnapshot(ctx, name); err != nil {
			o.record("failed to delete snapshot " + name + ": " + err.Error())
			continue
		}
		o.record("deleted snapshot " + name)
	}
}

// dryRunRepo logs what a real run would do. Only list calls are made; the
// external manager is never mutated.
func (o *Orchestrator) dryRunRepo(ctx context.Context, repo string) error {
	o.record("dry-run: would update mirror " + repo)
	o.record("dry-run: would snapshot and publish " + repo + " if the update fetched new packages")
	if o.config.MergeEnabled(repo) {
		o.record("dry-run: would merge the two newest snapshots of " + repo)
	}

	all, err := o.client.ListSnapshots(ctx)
	if err != nil {
		o.record("dry-run: cannot compute retention for " + repo + ": " + err.Error())
		return nil
	}
	plan := planPrune(aptly.SnapshotsFor(repo, all), o.config.Retention.KeepLast)
	for _, name := range plan.Delete {
		o.record("dry-run: would delete snapshot " + name)
	}
	return nil
}

// summarize mails the buffered run log to the summary recipients.
func (o *Orchestrator) summarize(override []string) {
	recipients := override
	if len(recipients) == 0 {
		recipients = o.config.Mail.Recipients
	}
	if len(recipients) == 0 || o.notifier == nil {
		slog.Debug("no summary recipients configured")
		return
	}

	if err := o.notifier.Send("aptly sync summary", o.buf.String(), recipients); err != nil {
		slog.Warn("failed to send summary mail", "error", err)
	}
}

// alert mails the buffered run log, including the fatal error, to the admin
// address.
func (o *Orchestrator) alert(runErr error) {
	o.buf.Add("FATAL: " + runErr.Error())

	admin := o.config.Mail.Admin
	if admin == "" || o.notifier == nil {
		slog.Debug("no admin address configured for alerts")
		return
	}
	if err := o.notifier.Send("aptly sync FAILED", o.buf.String(), []string{admin}); err != nil {
		slog.Warn("failed to send alert mail", "error", err)
	}
}

// writeUpdatesLog appends the raw mirror-update output to the repository's
// updates log. Failures are advisory.
func (o *Orchestrator) writeUpdatesLog(repo, out string) {
	if o.config.Log.Dir == "" || out == "" {
		return
	}

	logPath := filepath.Join(o.config.Log.Dir, repo+"-updates.log")
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640) // #nosec G302,G304 - operator log file under the configured directory
	if err != nil {
		slog.Warn("cannot open updates log", "repo", repo, "error", err)
		return
	}
	defer file.Close()

	header := o.now().Format("2006-01-02 15:04:05") + " mirror update " + repo + "\n"
	if _, err := file.WriteString(header + out); err != nil {
		slog.Warn("cannot write updates log", "repo", repo, "error", err)
	}
}

// hasNewPackages scans mirror-update output for download markers.
func hasNewPackages(out string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), downloadMarker) {
			return true
		}
	}
	return false
}

// Run starts a sync run.
//
// The first thing to do is to acquire flock on the lock file so concurrent
// invocations fail fast instead of interleaving aptly state.
func Run(config *Config, client aptly.Client, notifier notify.Notifier, opts Options) error {
	lockDir := config.Log.Dir
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	lockFile := filepath.Join(lockDir, lockFilename)

	file, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE, 0644) // #nosec G302,G304 - lock file under the configured log directory
	if err != nil {
		return errors.Wrap(err, "open lock file")
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("failed to close lock file", "error", err)
		}
	}()

	fileLock := Flock{file}
	if err := fileLock.Lock(); err != nil {
		return errors.Wrap(err, "another sync appears to be running")
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			slog.Warn("failed to unlock file", "error", err)
		}
	}()
	defer func() {
		if err := os.Remove(lockFile); err != nil {
			slog.Warn("failed to remove lock file", "error", err, "path", lockFile)
		}
	}()

	orchestrator := NewOrchestrator(config, client, notifier, opts.Quiet, opts.DryRun)
	orchestrator.progress = !opts.Quiet && !opts.DryRun

	group, ctx := errgroup.WithContext(context.Background())
	group.Go(func() error {
		return orchestrator.Run(ctx, opts)
	})
	return group.Wait()
}
