// Package patch applies a staged file tree onto the live system, creating
// writable overlays lazily and only where a write is actually needed.
package patch

import (
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	oerr "github.com/bibin-skaria/ovpatch/internal/errors"
)

// Kind classifies the outcome of the patch walk for one staged file.
type Kind string

const (
	KindAdded   Kind = "A" // File did not exist on the system
	KindUpdated Kind = "U" // File existed with different content
	KindSkipped Kind = "S" // Ignored or byte-identical
)

// ChangeRecord is one outcome of the patch walk.
type ChangeRecord struct {
	SystemPath string
	SourcePath string
	Kind       Kind
}

// Result summarizes a patch walk.
type Result struct {
	Changes []ChangeRecord
	// Applied counts the non-skipped changes.
	Applied int
	// Failed counts files whose copy failed; the walk continues past them.
	Failed int
}

// DirPreparer makes the directory containing a pending write writable.
// *overlay.Manager satisfies it.
type DirPreparer interface {
	Create(dir string) error
}

// Staged tree markers. A tree built with the legacy autotools setup cannot
// be installed file-by-file; a tree without a build descriptor was not
// produced by a supported staging step.
const (
	legacyBuildMarker = "Makefile.am"
	buildDescriptor   = "Rakefile"
)

// Engine walks a staged source tree and the target system tree in
// lock-step and copies only the files that actually differ, asking the
// DirPreparer to make each containing directory writable first.
type Engine struct {
	preparer   DirPreparer
	ignore     *IgnoreSet
	logger     *logrus.Logger
	systemRoot string
	dryRun     bool
}

// NewEngine creates an Engine applying files onto the real system root.
func NewEngine(preparer DirPreparer, ignore *IgnoreSet, logger *logrus.Logger) *Engine {
	return &Engine{
		preparer:   preparer,
		ignore:     ignore,
		logger:     logger,
		systemRoot: "/",
	}
}

// SetSystemRoot redirects writes under an alternative root directory.
func (e *Engine) SetSystemRoot(root string) {
	e.systemRoot = root
}

// SetDryRun makes Apply record changes without creating overlays or
// copying anything.
func (e *Engine) SetDryRun(dryRun bool) {
	e.dryRun = dryRun
}

// Apply walks the staged tree rooted at stagedRoot in lexical order and
// applies it onto the system. Precondition failures abort before any
// filesystem mutation. A file whose copy fails is logged and skipped; the
// walk continues and the collected failures are returned at the end
// alongside the partial result.
func (e *Engine) Apply(stagedRoot string) (*Result, error) {
	if err := e.checkStagedTree(stagedRoot); err != nil {
		return nil, err
	}

	result := &Result{}
	collector := oerr.NewErrorCollector()

	walkErr := filepath.WalkDir(stagedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(stagedRoot, path)
		if err != nil {
			return err
		}

		// The build descriptor is staging metadata, not payload.
		if rel == buildDescriptor {
			return nil
		}

		record, applyErr := e.applyFile(path, rel)
		if applyErr != nil {
			e.logger.WithFields(logrus.Fields{
				"file":  record.SystemPath,
				"error": applyErr,
			}).Warn("Copy failed, skipping file")
			collector.Add(oerr.WrapError(applyErr, "patch"))
			result.Failed++
			return nil
		}

		e.logChange(record)
		result.Changes = append(result.Changes, record)
		if record.Kind != KindSkipped {
			result.Applied++
		}
		return nil
	})
	if walkErr != nil {
		return nil, oerr.NewFilesystemError("patch", fmt.Sprintf("failed to walk staged tree %s", stagedRoot), walkErr)
	}

	e.logger.WithFields(logrus.Fields{
		"changed": result.Applied,
		"failed":  result.Failed,
	}).Info("Patch walk finished")

	return result, collector.ToError()
}

// checkStagedTree verifies the staged tree can be installed by this
// mechanism. Both checks run before any mutation.
func (e *Engine) checkStagedTree(root string) error {
	if _, err := os.Stat(filepath.Join(root, legacyBuildMarker)); err == nil {
		return oerr.NewPreconditionError("patch",
			fmt.Sprintf("staged tree %s uses an autotools build (%s present) and cannot be installed file-by-file", root, legacyBuildMarker))
	}

	if _, err := os.Stat(filepath.Join(root, buildDescriptor)); err != nil {
		return oerr.NewPreconditionError("patch",
			fmt.Sprintf("no %s found in staged tree %s", buildDescriptor, root))
	}

	return nil
}

func (e *Engine) applyFile(sourcePath, rel string) (ChangeRecord, error) {
	systemPath := filepath.Join(e.systemRoot, rel)
	record := ChangeRecord{SystemPath: systemPath, SourcePath: sourcePath}

	if e.ignore.Match(systemPath) {
		record.Kind = KindSkipped
		return record, nil
	}

	info, err := os.Lstat(systemPath)
	switch {
	case err == nil:
		same, err := sameContent(sourcePath, systemPath)
		if err != nil {
			return record, err
		}
		if same {
			// No overlay for unchanged files: overlay creation is
			// content-gated, not path-gated.
			record.Kind = KindSkipped
			return record, nil
		}

		if err := e.prepare(filepath.Dir(systemPath)); err != nil {
			return record, err
		}

		// Copying through a symlink would write to the link target, which
		// commonly lives in a read-only location. Replace the link instead.
		if info.Mode()&os.ModeSymlink != 0 && !e.dryRun {
			if err := os.Remove(systemPath); err != nil {
				return record, oerr.NewFilesystemError("patch", fmt.Sprintf("failed to remove symlink %s", systemPath), err)
			}
		}

		if err := e.copyFile(sourcePath, systemPath); err != nil {
			return record, err
		}
		record.Kind = KindUpdated

	case os.IsNotExist(err):
		parent := filepath.Dir(systemPath)
		if _, statErr := os.Stat(parent); statErr == nil {
			if err := e.prepare(parent); err != nil {
				return record, err
			}
		} else if os.IsNotExist(statErr) {
			// A brand new subtree has no pre-existing content to preserve,
			// so it is created directly without an overlay.
			if !e.dryRun {
				if err := os.MkdirAll(parent, 0755); err != nil {
					return record, oerr.NewFilesystemError("patch", fmt.Sprintf("failed to create directory %s", parent), err)
				}
			}
		} else {
			return record, oerr.NewFilesystemError("patch", fmt.Sprintf("cannot stat %s", parent), statErr)
		}

		if err := e.copyFile(sourcePath, systemPath); err != nil {
			return record, err
		}
		record.Kind = KindAdded

	default:
		return record, oerr.NewFilesystemError("patch", fmt.Sprintf("cannot stat %s", systemPath), err)
	}

	return record, nil
}

func (e *Engine) prepare(dir string) error {
	if e.dryRun {
		return nil
	}
	return e.preparer.Create(dir)
}

func (e *Engine) copyFile(src, dst string) error {
	if e.dryRun {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return oerr.NewFilesystemError("patch", fmt.Sprintf("failed to open %s", src), err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return oerr.NewFilesystemError("patch", fmt.Sprintf("failed to stat %s", src), err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return oerr.NewFilesystemError("patch", fmt.Sprintf("failed to create %s", dst), err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return oerr.NewFilesystemError("patch", fmt.Sprintf("failed to copy %s", dst), err)
	}

	if err := out.Close(); err != nil {
		return oerr.NewFilesystemError("patch", fmt.Sprintf("failed to close %s", dst), err)
	}

	// OpenFile applies its mode argument only when it creates the file, so
	// an updated file would keep its old permissions without this.
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return oerr.NewFilesystemError("patch", fmt.Sprintf("failed to set mode on %s", dst), err)
	}

	return nil
}

func (e *Engine) logChange(record ChangeRecord) {
	entry := e.logger.WithField("file", record.SystemPath)
	switch record.Kind {
	case KindAdded:
		entry.Info("Added")
	case KindUpdated:
		entry.Info("Updated")
	default:
		entry.Debug("Skipped")
	}
}

// sameContent reports whether two files are byte-identical, comparing
// sizes first and digests second.
func sameContent(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, oerr.NewFilesystemError("compare", fmt.Sprintf("cannot stat %s", a), err)
	}

	infoB, err := os.Stat(b)
	if err != nil {
		if os.IsNotExist(err) {
			// A dangling symlink has no content to match.
			return false, nil
		}
		return false, oerr.NewFilesystemError("compare", fmt.Sprintf("cannot stat %s", b), err)
	}

	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	digestA, err := digestFile(a)
	if err != nil {
		return false, err
	}
	digestB, err := digestFile(b)
	if err != nil {
		return false, err
	}

	return digestA == digestB, nil
}

func digestFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", oerr.NewFilesystemError("compare", fmt.Sprintf("failed to open %s", path), err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", oerr.NewFilesystemError("compare", fmt.Sprintf("failed to read %s", path), err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
