// Package archive extracts fetched source archives for ecosystems whose
// package manager consumes unpacked directories.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/matzehuels/prefetch/pkg/errors"
)

// ExtractTarGz unpacks the regular files and directories of a gzipped tar
// into dst. Entries escaping dst fail with INVALID_PATH; links and special
// files are skipped.
func ExtractTarGz(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return errors.New(errors.ErrCodeInvalidPath, "archive entry %q escapes the destination", hdr.Name)
		}
		target := filepath.Join(dst, name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		}
	}
}

func writeEntry(target string, r io.Reader, perm fs.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ExtractInto unpacks src next to dst, lets pick choose the directory that
// becomes dst and moves it into place, replacing whatever was there.
func ExtractInto(src, dst string, pick func(root string) (string, error)) error {
	parent := filepath.Dir(dst)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create %s", parent)
	}
	tmp, err := os.MkdirTemp(parent, ".unpack-")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create temp dir")
	}
	defer os.RemoveAll(tmp)

	if err := ExtractTarGz(src, tmp); err != nil {
		return errors.Wrap(errors.ErrCodeFetchFailed, err, "unpack %s", filepath.Base(dst))
	}
	dir, err := pick(tmp)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dst); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "clear %s", dst)
	}
	if err := os.Rename(dir, dst); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "move %s into place", filepath.Base(dst))
	}
	return nil
}
