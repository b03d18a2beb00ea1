package discovery

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cloudless/alloy-discovery/pkg/observability"
	"github.com/cloudless/alloy-discovery/pkg/targets"
)

// Writer replaces the discovery file with freshly rendered targets
type Writer struct {
	path   string
	opts   RenderOptions
	logger *zap.Logger
}

// NewWriter creates a writer for the file at path
func NewWriter(path string, opts RenderOptions, logger *zap.Logger) *Writer {
	return &Writer{
		path:   path,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Path returns the destination file
func (w *Writer) Path() string {
	return w.path
}

// Write renders ts and swaps the result into place with a rename, so a
// reader sees either the previous file or the new one, never a mix.
func (w *Writer) Write(ts []targets.Target) error {
	data := Render(ts, w.opts)

	if err := writeFileAtomic(w.path, data, 0644); err != nil {
		observability.DiscoveryFileWritesTotal.WithLabelValues("failure").Inc()
		return err
	}

	observability.DiscoveryFileWritesTotal.WithLabelValues("success").Inc()
	observability.DiscoveryFileBytes.Set(float64(len(data)))

	w.logger.Info("Wrote discovery file",
		zap.String("path", w.path),
		zap.Int("targets", len(ts)),
		zap.Int("bytes", len(data)),
	)

	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	// CreateTemp uses 0600; Alloy may run as another user.
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move discovery file into place: %w", err)
	}

	return nil
}
