package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/httputil"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// archivePrefix is the top-level directory of git archives, matching the
// layout of registry tarballs.
const archivePrefix = "package/"

// GitRunner runs git with args in dir and returns its standard output.
type GitRunner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// RunGit is the default [GitRunner]. It never prompts for credentials.
func RunGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// archiveGit fetches g.Ref into a scratch repository and writes a gzipped
// tarball of the commit to dst. A full commit hash ref must resolve to
// exactly that commit.
func (o *Orchestrator) archiveGit(ctx context.Context, g *locator.Git, dst string) error {
	work, err := os.MkdirTemp(filepath.Join(o.store.Root(), "tmp"), "git-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	repo := strings.TrimPrefix(g.URL, "git+")
	if _, err := o.git(ctx, work, "init", "--quiet"); err != nil {
		return errors.Wrap(errors.ErrCodeFetchFailed, err, "%s", g)
	}

	var commit string
	err = o.cfg.Retry.Do(ctx, func() error {
		c, err := o.fetchRef(ctx, work, repo, g.Ref)
		if err != nil {
			return httputil.Retryable(err)
		}
		commit = c
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrap(errors.ErrCodeFetchFailed, err, "fetch %s", g)
	}

	switch {
	case locator.IsFullSHA(g.Ref) && !strings.EqualFold(commit, g.Ref):
		return errors.New(errors.ErrCodeChecksumMismatch, "%s resolved to commit %s", g, commit)
	case !locator.IsFullSHA(g.Ref):
		o.log.Warn("git reference is not pinned to a commit", "repo", repo, "ref", g.Ref, "commit", commit)
	}

	if _, err := o.git(ctx, work, "archive", "--format=tar.gz", "--prefix="+archivePrefix, "-o", dst, commit); err != nil {
		return errors.Wrap(errors.ErrCodeFetchFailed, err, "archive %s", g)
	}
	return nil
}

// fetchRef fetches ref from repo into work and returns the commit it
// names. A shallow fetch of the ref is tried first; servers that refuse to
// serve an unadvertised commit get a full fetch of branches and tags.
func (o *Orchestrator) fetchRef(ctx context.Context, work, repo, ref string) (string, error) {
	if _, err := o.git(ctx, work, "fetch", "--quiet", "--depth=1", repo, ref); err == nil {
		return o.revParse(ctx, work, "FETCH_HEAD")
	}
	if _, err := o.git(ctx, work, "fetch", "--quiet", "--tags", repo, "+refs/heads/*:refs/remotes/origin/*"); err != nil {
		return "", err
	}
	if c, err := o.revParse(ctx, work, ref); err == nil {
		return c, nil
	}
	return o.revParse(ctx, work, "origin/"+ref)
}

func (o *Orchestrator) revParse(ctx context.Context, work, rev string) (string, error) {
	out, err := o.git(ctx, work, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
