package aptly

import (
	"context"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultPath is where aptly is normally installed.
const DefaultPath = "/usr/bin/aptly"

// runner executes the aptly binary. It exists so ExecClient argv
// construction can be tested without an aptly installation.
type runner interface {
	run(ctx context.Context, args ...string) (string, error)
}

type execRunner struct {
	path string
}

func (r execRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.path, args...) // #nosec G204 - args are built from validated IDs
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), errors.Wrapf(err, "aptly %s", strings.Join(args, " "))
	}
	return string(out), nil
}

// ExecClient implements Client by invoking the aptly binary.
type ExecClient struct {
	run    runner
	gpgKey string
}

// NewExecClient creates a client that shells out to the aptly binary at
// path. gpgKey, if non-empty, is passed to publish operations.
func NewExecClient(path, gpgKey string) *ExecClient {
	if path == "" {
		path = DefaultPath
	}
	return &ExecClient{
		run:    execRunner{path: path},
		gpgKey: gpgKey,
	}
}

// splitLines returns the non-empty, space-trimmed lines of out.
func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ListMirrors returns all mirror names known to aptly.
func (c *ExecClient) ListMirrors(ctx context.Context) ([]string, error) {
	out, err := c.run.run(ctx, "mirror", "list", "-raw")
	if err != nil {
		return nil, errors.Wrap(err, "list mirrors")
	}
	return splitLines(out), nil
}

// ListSnapshots returns all snapshot names known to aptly.
func (c *ExecClient) ListSnapshots(ctx context.Context) ([]string, error) {
	out, err := c.run.run(ctx, "snapshot", "list", "-raw")
	if err != nil {
		return nil, errors.Wrap(err, "list snapshots")
	}
	return splitLines(out), nil
}

// UpdateMirror refreshes a mirror. The combined output is returned even on
// failure so callers can log what aptly printed before dying.
func (c *ExecClient) UpdateMirror(ctx context.Context, mirror string) (string, error) {
	out, err := c.run.run(ctx, "mirror", "update", mirror)
	if err != nil {
		return out, errors.Wrap(err, "update mirror "+mirror)
	}
	return out, nil
}

// CreateSnapshot captures the current state of a mirror under name.
func (c *ExecClient) CreateSnapshot(ctx context.Context, name, mirror string) error {
	_, err := c.run.run(ctx, "snapshot", "create", name, "from", "mirror", mirror)
	if err != nil {
		return errors.Wrap(err, "create snapshot "+name)
	}
	return nil
}

// MergeSnapshots merges newer and older into dst. Later sources win on
// conflicts, so the newer snapshot is passed last.
func (c *ExecClient) MergeSnapshots(ctx context.Context, dst, newer, older string) error {
	_, err := c.run.run(ctx, "snapshot", "merge", dst, older, newer)
	if err != nil {
		return errors.Wrap(err, "merge snapshots into "+dst)
	}
	return nil
}

// PublishSwitch switches the published distribution to the given snapshot.
func (c *ExecClient) PublishSwitch(ctx context.Context, distribution, snapshot string) error {
	args := []string{"publish", "switch"}
	if c.gpgKey != "" {
		args = append(args, "-gpg-key="+c.gpgKey)
	}
	args = append(args, distribution, snapshot)

	_, err := c.run.run(ctx, args...)
	if err != nil {
		return errors.Wrap(err, "publish switch "+distribution)
	}
	return nil
}

// DropSnapshot deletes a snapshot.
func (c *ExecClient) DropSnapshot(ctx context.Context, name string) error {
	_, err := c.run.run(ctx, "snapshot", "drop", name)
	if err != nil {
		return errors.Wrap(err, "drop snapshot "+name)
	}
	return nil
}

// ShowPackages lists the package references in a snapshot. aptly indents
// each reference below a "Packages:" header; only indented lines after the
// header are references.
func (c *ExecClient) ShowPackages(ctx context.Context, snapshot string) ([]string, error) {
	out, err := c.run.run(ctx, "snapshot", "show", "-with-packages", snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "show snapshot "+snapshot)
	}

	var refs []string
	inPackages := false
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Packages:") {
			inPackages = true
			continue
		}
		if !inPackages {
			continue
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			// Next top-level section ends the package list.
			inPackages = false
			continue
		}
		ref := strings.TrimSpace(line)
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}
