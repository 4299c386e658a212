package prefetch

import (
	"context"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matzehuels/prefetch/pkg/graph"
	"github.com/matzehuels/prefetch/pkg/locator"
	"github.com/matzehuels/prefetch/pkg/report"
)

var commitRe = regexp.MustCompile(`^[0-9a-f]{40}([0-9a-f]{24})?$`)

// project describes the root component of the bill of materials. Name and
// version come from the root of the first package; the VCS reference from
// the origin remote and HEAD of the project repository.
func (r *Runner) project(ctx context.Context, p *Parsed) report.Project {
	proj := report.Project{Name: filepath.Base(r.cfg.ProjectRoot)}
	if len(p.units) > 0 {
		u := p.units[0]
		if n, ok := p.Graph.Node(graph.NodeID(u.eco.Name(), &locator.Workspace{PackagePath: "."})); ok {
			if n.Name != "" {
				proj.Name = n.Name
			}
			proj.Version = n.Version
		}
	}

	remote, err := r.cfg.Git(ctx, r.cfg.ProjectRoot, "remote", "get-url", "origin")
	if err != nil {
		r.log.Debug("no origin remote", "err", err)
		return proj
	}
	head, err := r.cfg.Git(ctx, r.cfg.ProjectRoot, "rev-parse", "HEAD")
	if err != nil {
		r.log.Debug("no HEAD commit", "err", err)
		return proj
	}
	commit := strings.TrimSpace(string(head))
	if !commitRe.MatchString(commit) {
		return proj
	}
	proj.VCSURL = "git+" + stripCredentials(strings.TrimSpace(string(remote))) + "@" + commit
	return proj
}

// stripCredentials removes user information from URL-style remotes.
// scp-style remotes such as git@host:org/repo.git are returned unchanged.
func stripCredentials(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return remote
	}
	u.User = nil
	return u.String()
}
