package overlay

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	oerr "github.com/bibin-skaria/ovpatch/internal/errors"
	"github.com/bibin-skaria/ovpatch/internal/run"
)

// Manager owns the lifecycle of overlay mounts rooted at a fixed storage
// prefix. It keeps no in-memory registry; liveness is always re-derived
// from the kernel mount table, because overlays may have been created or
// removed by a previous invocation in a separate process.
//
// The manager assumes at most one instance mutates a given target
// directory's overlay at a time. It performs no locking; two concurrent
// invocations targeting the same directory is an unsupported configuration.
type Manager struct {
	prefix     string
	runner     run.Runner
	logger     *logrus.Logger
	mountsFile string
}

// NewManager creates a Manager storing overlay data under prefix.
func NewManager(prefix string, logger *logrus.Logger) *Manager {
	return NewManagerWithRunner(prefix, run.ExecRunner{}, logger)
}

// NewManagerWithRunner creates a Manager with a custom command runner.
func NewManagerWithRunner(prefix string, runner run.Runner, logger *logrus.Logger) *Manager {
	return &Manager{
		prefix:     prefix,
		runner:     runner,
		logger:     logger,
		mountsFile: "/proc/self/mounts",
	}
}

// Overlay constructs the Overlay for the given directory without touching
// the system.
func (m *Manager) Overlay(path string) (*Overlay, error) {
	return New(m.prefix, path)
}

// Create makes the given directory writable by mounting an overlay over
// it. It is idempotent: a missing target or an already writable target is
// a no-op, so redundant calls from a retried operation are safe.
func (m *Manager) Create(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.WithField("dir", path).Debug("Target does not exist, skipping overlay")
			return nil
		}
		return oerr.NewFilesystemError("create", fmt.Sprintf("cannot stat %s", path), err)
	}
	if !info.IsDir() {
		return oerr.NewValidationError("create", fmt.Sprintf("%s is not a directory", path), nil)
	}

	// A directory can be writable without this tool's involvement, so probe
	// writability instead of looking for an existing overlay record.
	if m.isWritable(path) {
		m.logger.WithField("dir", path).Debug("Directory already writable, no overlay needed")
		return nil
	}

	ov, err := New(m.prefix, path)
	if err != nil {
		return err
	}

	for _, dir := range []string{ov.UpperDir(), ov.WorkDir(), ov.MirrorDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return oerr.NewFilesystemError("create", fmt.Sprintf("failed to create overlay storage %s", dir), err)
		}
	}

	target := ov.ResolvedPath

	// Keep the pre-overlay content reachable for later diffing.
	if res := m.run("mount", "--bind", target, ov.MirrorDir()); !res.Ok() {
		return oerr.NewMountError("bind-mount", fmt.Sprintf("failed to bind mount %s", target), res.Output, res.Err)
	}

	// The mirror must not receive the overlay mount event below, otherwise
	// it would show the overlaid content instead of the original.
	if res := m.run("mount", "--make-private", ov.MirrorDir()); !res.Ok() {
		return oerr.NewMountError("make-private", fmt.Sprintf("failed to make %s private", ov.MirrorDir()), res.Output, res.Err)
	}

	options := fmt.Sprintf("lowerdir=%s,upperdir=%s,workdir=%s", target, ov.UpperDir(), ov.WorkDir())
	if res := m.run("mount", "-t", "overlay", "overlay", "-o", options, target); !res.Ok() {
		return oerr.NewMountError("mount", fmt.Sprintf("failed to mount overlay at %s", target), res.Output, res.Err)
	}

	m.logger.WithField("dir", target).Info("Overlay mounted")
	return nil
}

// Delete unmounts the overlay for the given directory and removes its
// storage, restoring the directory to its pre-overlay content. It is not
// idempotent: unmount failures (including "not mounted") are surfaced.
func (m *Manager) Delete(path string) error {
	ov, err := New(m.prefix, path)
	if err != nil {
		return err
	}

	if res := m.run("umount", ov.ResolvedPath); !res.Ok() {
		return oerr.NewMountError("umount", fmt.Sprintf("failed to unmount overlay at %s", ov.ResolvedPath), res.Output, res.Err)
	}

	if res := m.run("umount", ov.MirrorDir()); !res.Ok() {
		return oerr.NewMountError("umount", fmt.Sprintf("failed to unmount mirror %s", ov.MirrorDir()), res.Output, res.Err)
	}

	for _, dir := range []string{ov.UpperDir(), ov.WorkDir(), ov.MirrorDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return oerr.NewFilesystemError("delete", fmt.Sprintf("failed to remove overlay storage %s", dir), err)
		}
	}

	m.logger.WithField("dir", ov.ResolvedPath).Info("Overlay removed")
	return nil
}

// FindAll returns the current set of active overlays by scanning the live
// mount table for overlay-type mounts. The result is never cached, so it
// reflects overlays created by earlier process invocations as well.
func (m *Manager) FindAll() ([]*Overlay, error) {
	data, err := os.ReadFile(m.mountsFile)
	if err != nil {
		return nil, oerr.NewFilesystemError("find", fmt.Sprintf("cannot read mount table %s", m.mountsFile), err)
	}

	var overlays []*Overlay
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[2] != "overlay" {
			continue
		}

		mountPoint := decodeMountPoint(fields[1])
		ov, err := New(m.prefix, mountPoint)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"dir":   mountPoint,
				"error": err,
			}).Warn("Skipping unreadable overlay mount point")
			continue
		}
		overlays = append(overlays, ov)
	}

	return overlays, nil
}

// ChangedFile is one regular file present in an overlay's upper layer,
// i.e. one file changed since the overlay was created.
type ChangedFile struct {
	// SystemPath is the live system path of the file.
	SystemPath string
	// UpperPath is the file's location in the writable upper layer.
	UpperPath string
	// MirrorPath is the corresponding path under the pre-overlay mirror;
	// it does not exist for newly added files.
	MirrorPath string
}

// ChangedFiles walks the overlay's upper layer and returns a triple per
// regular file, in lexical order. Files removed through the overlay leave
// character-device whiteout markers in the upper layer; those are not
// regular files and are not reported. This is a known limitation.
func (m *Manager) ChangedFiles(ov *Overlay) ([]ChangedFile, error) {
	upper := ov.UpperDir()
	if _, err := os.Stat(upper); os.IsNotExist(err) {
		return nil, nil
	}

	// Re-derive the system directory from the storage key so the listing
	// works for overlays found in the mount table, not only freshly
	// constructed ones.
	systemDir := Unescape(filepath.Base(upper))

	var files []ChangedFile
	err := filepath.WalkDir(upper, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(upper, path)
		if err != nil {
			return err
		}

		files = append(files, ChangedFile{
			SystemPath: filepath.Join(systemDir, rel),
			UpperPath:  path,
			MirrorPath: filepath.Join(ov.MirrorDir(), rel),
		})
		return nil
	})
	if err != nil {
		return nil, oerr.NewFilesystemError("files", fmt.Sprintf("failed to walk upper layer %s", upper), err)
	}

	return files, nil
}

// DefaultSet returns the default overlay targets: the fixed well-known
// directories plus every direct subdirectory of each expand parent. The
// expand parents are writable themselves but contain symlinks into
// read-only locations, so each subdirectory needs its own overlay.
func DefaultSet(dirs, expand []string) []string {
	targets := make([]string, 0, len(dirs))
	targets = append(targets, dirs...)

	for _, parent := range expand {
		entries, err := os.ReadDir(parent)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			full := filepath.Join(parent, entry.Name())
			info, err := os.Stat(full)
			if err != nil || !info.IsDir() {
				continue
			}
			targets = append(targets, full)
		}
	}

	return targets
}

func (m *Manager) run(name string, args ...string) *run.Result {
	m.logger.WithField("command", strings.Join(append([]string{name}, args...), " ")).Debug("Running command")
	return m.runner.Run(name, args...)
}

// isWritable probes writability by creating a temporary file, which also
// catches read-only mounts when running as root. Only read-only conditions
// count as unwritable; an unrelated probe failure (disk full, say) must not
// trigger a pointless overlay mount.
func (m *Manager) isWritable(dir string) bool {
	probe, err := os.CreateTemp(dir, ".ovpatch-probe-*")
	if err != nil {
		return !isReadOnlyError(err)
	}

	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}

func isReadOnlyError(err error) bool {
	return os.IsPermission(err) || errors.Is(err, syscall.EROFS)
}

// decodeMountPoint decodes the octal escapes (\040 for space etc.) used in
// /proc mount listings.
func decodeMountPoint(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
