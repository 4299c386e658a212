package fetch

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/matzehuels/prefetch/pkg/cache"
	"github.com/matzehuels/prefetch/pkg/checksum"
	"github.com/matzehuels/prefetch/pkg/errors"
	"github.com/matzehuels/prefetch/pkg/locator"
)

// source is where the bytes of a task come from.
type source struct {
	url      string
	file     string
	git      *locator.Git
	filename string
	expected []checksum.Checksum
}

func (s source) String() string {
	switch {
	case s.git != nil:
		return s.git.String()
	case s.file != "":
		return s.file
	}
	return s.url
}

func (o *Orchestrator) fetch(ctx context.Context, t *task) (*Record, error) {
	if t.local() {
		rec, err := hashTree(t.dir)
		if err != nil {
			return nil, err
		}
		if len(t.declared) > 0 && !checksum.Contains(t.declared, rec.Checksum) {
			want, _ := checksum.Strongest(t.declared)
			return nil, errors.New(errors.ErrCodeChecksumMismatch, "%s: expected %s, got %s", t.dir, want, rec.Checksum)
		}
		return rec, nil
	}

	src, err := o.locate(ctx, t)
	if err != nil {
		return nil, err
	}

	e, ok, err := o.store.Lookup(ctx, t.key)
	if err != nil {
		return nil, err
	}
	if ok {
		if len(src.expected) > 0 && !checksum.Contains(src.expected, e.Checksum) {
			if _, err := verify(e.Path, src.expected); err != nil {
				return nil, errors.Wrap(errors.ErrCodeChecksumMismatch, err, "store entry %s", t.key)
			}
		}
		o.log.Debug("reused store entry", "address", t.key)
		return newRecord(e, src), nil
	}

	if rec, ok := o.fromMirror(ctx, t, src); ok {
		return rec, nil
	}

	tmp, err := o.download(ctx, src)
	if err != nil {
		return nil, err
	}
	sum, err := verify(tmp, src.expected)
	if err != nil {
		os.Remove(tmp)
		return nil, errors.Wrap(errors.ErrCodeChecksumMismatch, err, "%s", src)
	}
	e, err = o.store.Publish(ctx, tmp, t.key, sum)
	if err != nil {
		return nil, err
	}
	o.toMirror(ctx, e)
	return newRecord(e, src), nil
}

func newRecord(e cache.Entry, src source) *Record {
	return &Record{
		Address:  e.Address,
		Source:   src.String(),
		Size:     e.Size,
		Checksum: e.Checksum,
		Path:     e.Path,
		Filename: src.filename,
	}
}

// locate decides where t is downloaded from and which checksums the
// download must match. Registry artifacts without a URL or a verifiable
// checksum are looked up through the ecosystem's resolver first.
func (o *Orchestrator) locate(ctx context.Context, t *task) (source, error) {
	src := source{expected: t.declared}
	switch l := t.locator.(type) {
	case *locator.Registry:
		src.url = l.URL
		if l.URL != "" && len(t.declared) > 0 {
			break
		}
		r, ok := o.cfg.Resolvers[t.ecosystem]
		if !ok {
			if l.URL == "" {
				return src, errors.New(errors.ErrCodeUnsupportedFeature, "%s: no download location for %s", t.ecosystem, l)
			}
			break
		}
		dl, err := r.ResolveArtifact(ctx, t.artifact)
		if err != nil {
			if errors.GetCode(err) == "" {
				err = errors.Wrap(errors.ErrCodeFetchFailed, err, "resolve %s", l)
			}
			return src, err
		}
		if dl.URL != "" {
			src.url = dl.URL
		}
		src.filename = dl.Filename
		if len(src.expected) == 0 && dl.Checksum.Verifiable() {
			src.expected = []checksum.Checksum{dl.Checksum}
		}
		if src.url == "" {
			return src, errors.New(errors.ErrCodeUnresolvableReference, "%s: no download URL for %s", t.ecosystem, l)
		}
	case *locator.Builtin:
		src.url, src.file = l.Source.URL, l.Source.Path
	case *locator.File:
		src.file = l.Resolved
	case *locator.Git:
		src.git = l
	}
	if src.filename == "" {
		src.filename = fileName(src)
	}
	return src, nil
}

func fileName(src source) string {
	switch {
	case src.file != "":
		return filepath.Base(src.file)
	case src.url != "":
		if u, err := url.Parse(src.url); err == nil && u.Path != "" {
			if base := path.Base(u.Path); base != "/" && base != "." {
				return base
			}
		}
	}
	return ""
}

// download writes the source into a temporary file in the store and
// returns its path.
func (o *Orchestrator) download(ctx context.Context, src source) (string, error) {
	f, err := o.store.CreateTemp()
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	switch {
	case src.git != nil:
		f.Close()
		err = o.archiveGit(ctx, src.git, tmp)
	case src.file != "":
		err = copyInto(f, src.file)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	default:
		_, err = o.client.Download(ctx, src.url, f, func() error {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			return f.Truncate(0)
		})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil && ctx.Err() == nil {
			err = errors.Wrap(errors.ErrCodeFetchFailed, err, "download %s", src.url)
		}
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func copyInto(dst io.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return errors.Wrap(errors.ErrCodeFileNotFound, err, "%s", src)
		}
		return err
	}
	defer in.Close()
	_, err = io.Copy(dst, in)
	return err
}

// verify checks the file at p against expected and returns the checksum it
// matched. Only the strongest algorithm among expected is checked; the file
// must equal one of its values. With nothing expected the file's sha256 is
// returned.
func verify(p string, expected []checksum.Checksum) (checksum.Checksum, error) {
	want, ok := checksum.Strongest(expected)
	if !ok {
		return checksum.Compute(checksum.SHA256, p)
	}
	got, err := checksum.Compute(want.Algorithm, p)
	if err != nil {
		return checksum.Checksum{}, err
	}
	for _, c := range expected {
		if c == got {
			return c, nil
		}
	}
	return checksum.Checksum{}, errors.New(errors.ErrCodeChecksumMismatch, "expected %s, got %s", want, got)
}

// hashTree identifies a local directory by its h1 dirhash.
func hashTree(dir string) (*Record, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "%s", dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "%s is not a directory", dir)
	}
	sum, err := checksum.HashDir(dir)
	if err != nil {
		return nil, err
	}
	return &Record{Address: sum.String(), Source: dir, Checksum: sum, Path: dir, Dir: true}, nil
}

// fromMirror tries the mirror for t. Mirrored bytes are verified like a
// download; a mismatch is logged and treated as a miss.
func (o *Orchestrator) fromMirror(ctx context.Context, t *task, src source) (*Record, bool) {
	if o.cfg.Mirror == nil || len(src.expected) == 0 {
		return nil, false
	}
	f, err := o.store.CreateTemp()
	if err != nil {
		return nil, false
	}
	tmp := f.Name()
	f.Close()

	found, err := o.cfg.Mirror.Get(ctx, t.key, tmp)
	if err != nil || !found {
		if err != nil {
			o.log.Warn("mirror lookup failed", "address", t.key, "err", err)
		}
		os.Remove(tmp)
		return nil, false
	}
	sum, err := verify(tmp, src.expected)
	if err != nil {
		o.log.Warn("ignoring mirrored entry", "address", t.key, "err", err)
		os.Remove(tmp)
		return nil, false
	}
	e, err := o.store.Publish(ctx, tmp, t.key, sum)
	if err != nil {
		o.log.Warn("publish mirrored entry", "address", t.key, "err", err)
		return nil, false
	}
	o.log.Debug("restored from mirror", "address", t.key)
	return newRecord(e, src), true
}

func (o *Orchestrator) toMirror(ctx context.Context, e cache.Entry) {
	if o.cfg.Mirror == nil {
		return
	}
	if err := o.cfg.Mirror.Put(ctx, e.Address, e.Path); err != nil {
		o.log.Warn("mirror upload failed", "address", e.Address, "err", err)
	}
}
