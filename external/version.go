package external

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/hupe1980/forwardindex/collation"
	"github.com/hupe1980/forwardindex/internal/errs"
	"github.com/hupe1980/forwardindex/internal/fs"
)

const (
	versionFile = "version.dat"
	versionType = "fi"

	// CurrentVersion is the format written by this package.
	CurrentVersion = "5"
)

// Format versions still recognised:
//
//	2  initial formats, no longer readable
//	3  single-block terms file, V1 collators
//	4  block-based terms file, V1 collators (read-only)
//	5  V2 collators
func readVersion(fsys fs.FileSystem, dir string) (string, error) {
	path := filepath.Join(dir, versionFile)
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s: no version marker", ErrFormat, dir)
		}
		return "", errs.Wrap("read", path, err)
	}

	typ, version, ok := strings.Cut(strings.TrimSpace(string(data)), "||")
	if !ok || typ != versionType {
		return "", fmt.Errorf("%w: %s: not a forward index (%q)", ErrFormat, dir, string(data))
	}
	return version, nil
}

func writeVersion(fsys fs.FileSystem, dir string) error {
	path := filepath.Join(dir, versionFile)
	err := fs.WriteFileAtomic(fsys, path, func(w io.Writer) error {
		_, err := io.WriteString(w, versionType+"||"+CurrentVersion)
		return err
	})
	return errs.Wrap("write", path, err)
}

// collatorVersion maps a format version to the collators it was written
// with. writable reports whether this package may modify such an index.
func collatorVersion(dir, version string) (v collation.Version, writable bool, err error) {
	switch version {
	case CurrentVersion:
		return collation.V2, true, nil
	case "4":
		return collation.V1, false, nil
	case "3", "2":
		return 0, false, fmt.Errorf("%w: %s: forward index version %s is too old, re-index", ErrFormat, dir, version)
	default:
		return 0, false, fmt.Errorf("%w: %s: unknown forward index version %q (%s expected)", ErrFormat, dir, version, CurrentVersion)
	}
}
