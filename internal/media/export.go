package media

import (
	"context"
	"fmt"
	"path/filepath"
)

// Exporter saves attachments into a user-visible directory.
type Exporter struct {
	dir string
}

// NewExporter creates an exporter writing to dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Export copies src to dir/name and returns the new path.
func (e *Exporter) Export(src, name string) (string, error) {
	dst := filepath.Join(e.dir, filepath.Base(name))
	if err := copyFile(context.Background(), src, dst); err != nil {
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	return dst, nil
}
