package overlay

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	oerr "github.com/bibin-skaria/ovpatch/internal/errors"
)

// CompressionType selects the archive compression used by Export.
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionZstd CompressionType = "zstd"
)

// Extension returns the file name extension for the compression type.
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGzip:
		return ".tar.gz"
	case CompressionZstd:
		return ".tar.zst"
	default:
		return ".tar"
	}
}

// ParseCompressionType validates a user-supplied compression name.
func ParseCompressionType(name string) (CompressionType, error) {
	switch CompressionType(name) {
	case CompressionNone, CompressionGzip, CompressionZstd:
		return CompressionType(name), nil
	default:
		return "", oerr.NewValidationError("export", fmt.Sprintf("unsupported compression type: %s", name), nil)
	}
}

// Export packages the overlay's changed files into a tar archive at
// outPath, storing each file under its live system path. It returns the
// number of archived files.
func (m *Manager) Export(ov *Overlay, outPath string, compression CompressionType) (int, error) {
	files, err := m.ChangedFiles(ov)
	if err != nil {
		return 0, err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, oerr.NewFilesystemError("export", fmt.Sprintf("failed to create archive %s", outPath), err)
	}
	defer out.Close()

	var w io.Writer = out
	switch compression {
	case CompressionGzip:
		gzWriter := gzip.NewWriter(out)
		defer gzWriter.Close()
		w = gzWriter
	case CompressionZstd:
		zstdWriter, err := zstd.NewWriter(out)
		if err != nil {
			return 0, oerr.NewFilesystemError("export", "failed to create zstd writer", err)
		}
		defer zstdWriter.Close()
		w = zstdWriter
	}

	tarWriter := tar.NewWriter(w)
	defer tarWriter.Close()

	for _, file := range files {
		if err := addFileToTar(tarWriter, file.UpperPath, file.SystemPath); err != nil {
			return 0, oerr.NewFilesystemError("export", fmt.Sprintf("failed to archive %s", file.SystemPath), err)
		}
	}

	m.logger.WithField("archive", outPath).Info("Changed files exported")
	return len(files), nil
}

func addFileToTar(tarWriter *tar.Writer, filePath, tarPath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = strings.TrimPrefix(tarPath, "/")

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tarWriter, file)
	return err
}
