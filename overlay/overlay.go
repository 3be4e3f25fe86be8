package overlay

import (
	"fmt"
	"os"
	"path/filepath"

	oerr "github.com/bibin-skaria/ovpatch/internal/errors"
)

// Storage subdirectories under the prefix. The layout is part of the
// on-disk contract and must not change between releases.
const (
	upperSubdir  = "upper"
	workSubdir   = "workdir"
	mirrorSubdir = "original"
)

// Overlay describes one managed writable-overlay instance for a directory.
// Constructing an Overlay has no side effects; it becomes live only after
// Manager.Create performs the mount sequence.
type Overlay struct {
	// RequestedPath is the directory as given by the caller, possibly
	// containing symlinks.
	RequestedPath string
	// ResolvedPath is RequestedPath with all symlinks resolved. All storage
	// and mount operations key off this value.
	ResolvedPath string

	prefix string
}

// New creates an Overlay for the given directory under the given storage
// prefix. It fails when the resolved path does not name an existing
// directory.
func New(prefix, path string) (*Overlay, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, oerr.NewFilesystemError("overlay", fmt.Sprintf("cannot resolve %s", path), err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, oerr.NewFilesystemError("overlay", fmt.Sprintf("cannot stat %s", resolved), err)
	}
	if !info.IsDir() {
		return nil, oerr.NewValidationError("overlay", fmt.Sprintf("%s is not a directory", resolved), nil)
	}

	return &Overlay{
		RequestedPath: path,
		ResolvedPath:  resolved,
		prefix:        prefix,
	}, nil
}

// UpperDir returns the writable layer directory for this overlay. The
// mapping from ResolvedPath is pure; the same path always yields the same
// storage locations.
func (o *Overlay) UpperDir() string {
	return filepath.Join(o.prefix, upperSubdir, Escape(o.ResolvedPath))
}

// WorkDir returns the kernel scratch directory for this overlay.
func (o *Overlay) WorkDir() string {
	return filepath.Join(o.prefix, workSubdir, Escape(o.ResolvedPath))
}

// MirrorDir returns the directory holding the private bind mount of the
// pre-overlay content, used for diffing later changes.
func (o *Overlay) MirrorDir() string {
	return filepath.Join(o.prefix, mirrorSubdir, Escape(o.ResolvedPath))
}
