package overlay

import (
	"fmt"
	"io"
	"os"

	"github.com/pmezard/go-difflib/difflib"

	oerr "github.com/bibin-skaria/ovpatch/internal/errors"
)

// Diff writes a unified diff between the pre-overlay content (mirror) and
// the current content (upper layer) for every changed file of the overlay.
// Newly added files have no prior version to diff against; a notice is
// emitted instead.
func (m *Manager) Diff(ov *Overlay, w io.Writer) error {
	files, err := m.ChangedFiles(ov)
	if err != nil {
		return err
	}

	for _, file := range files {
		original, err := os.ReadFile(file.MirrorPath)
		if os.IsNotExist(err) {
			if _, err := fmt.Fprintf(w, "New file: %s\n", file.SystemPath); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return oerr.NewFilesystemError("diff", fmt.Sprintf("cannot read original %s", file.MirrorPath), err)
		}

		changed, err := os.ReadFile(file.UpperPath)
		if err != nil {
			return oerr.NewFilesystemError("diff", fmt.Sprintf("cannot read %s", file.UpperPath), err)
		}

		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(original)),
			B:        difflib.SplitLines(string(changed)),
			FromFile: "a" + file.SystemPath,
			ToFile:   "b" + file.SystemPath,
			Context:  3,
		})
		if err != nil {
			return oerr.NewFilesystemError("diff", fmt.Sprintf("failed to diff %s", file.SystemPath), err)
		}

		if _, err := io.WriteString(w, text); err != nil {
			return err
		}
	}

	return nil
}
