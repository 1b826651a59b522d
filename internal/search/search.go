// Package search finds packages in aptly snapshots by name or prefix.
package search

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	version "github.com/knqyf263/go-deb-version"

	"github.com/aptlyctl/aptlyctl/internal/aptly"
)

// versionSeparator splits the package name from the version in an aptly
// package reference ("name_version_arch").
const versionSeparator = "_"

// Pattern matches package references by exact name or trailing-wildcard
// prefix.
type Pattern struct {
	text string
	re   *regexp.Regexp
}

// Compile parses a search pattern. A pattern without "*" matches package
// names exactly. A pattern ending in "*" matches any name sharing the
// prefix. "*" anywhere else is rejected.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}

	wildcard := strings.HasSuffix(pattern, "*")
	name := pattern
	if wildcard {
		name = pattern[:len(pattern)-1]
	}
	if strings.Contains(name, "*") {
		return nil, errors.New("wildcards are only supported at the end of the pattern: " + pattern)
	}
	if name == "" {
		return nil, errors.New("pattern needs at least one character before the wildcard")
	}

	var expr string
	if wildcard {
		// Any name sharing the prefix, up to the version separator.
		expr = "^" + regexp.QuoteMeta(name) + "[^" + versionSeparator + "]*" + versionSeparator
	} else {
		// Exact name followed by the version separator, so "nginx"
		// does not match "nginx-common".
		expr = "^" + regexp.QuoteMeta(name) + versionSeparator
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrap(err, "compile pattern "+pattern)
	}
	return &Pattern{text: pattern, re: re}, nil
}

// String returns the original pattern text.
func (p *Pattern) String() string {
	return p.text
}

// Match reports whether a package reference matches the pattern.
func (p *Pattern) Match(ref string) bool {
	return p.re.MatchString(ref)
}

// Result holds the matches found in one snapshot.
type Result struct {
	Snapshot string
	Refs     []string
}

// Run queries every snapshot for package references matching the pattern.
// Snapshots with no match contribute nothing; within each result the
// references are ordered newest version first.
func Run(ctx context.Context, client aptly.Client, pattern *Pattern) ([]Result, error) {
	snapshots, err := client.ListSnapshots(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}

	var results []Result
	for _, snapshot := range snapshots {
		refs, err := client.ShowPackages(ctx, snapshot)
		if err != nil {
			return nil, errors.Wrap(err, "search "+snapshot)
		}

		var matched []string
		for _, ref := range refs {
			if pattern.Match(ref) {
				matched = append(matched, ref)
			}
		}
		if len(matched) == 0 {
			continue
		}

		sortRefs(matched)
		results = append(results, Result{Snapshot: snapshot, Refs: matched})
	}
	return results, nil
}

// sortRefs orders package references by name, then by Debian version
// descending so the newest version of each package comes first.
func sortRefs(refs []string) {
	sort.SliceStable(refs, func(i, j int) bool {
		ni, vi := splitRef(refs[i])
		nj, vj := splitRef(refs[j])
		if ni != nj {
			return ni < nj
		}
		dvi, erri := version.NewVersion(vi)
		dvj, errj := version.NewVersion(vj)
		if erri != nil || errj != nil {
			return vi > vj
		}
		return dvi.GreaterThan(dvj)
	})
}

// splitRef splits "name_version_arch" into name and version.
func splitRef(ref string) (name, ver string) {
	parts := strings.Split(ref, versionSeparator)
	if len(parts) < 2 {
		return ref, ""
	}
	return parts[0], parts[1]
}
