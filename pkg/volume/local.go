// Package volume implements the local volume driver: it resolves a
// workload's VolumeMount.Source names to host-side directories the
// containerd Runtime Facade backend can bind-mount into a container.
package volume

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultVolumesPath is the base directory for local volumes.
const DefaultVolumesPath = "/var/lib/nodeagent/volumes"

// LocalDriver is a simple local volume driver: each volume is a directory
// under basePath named after its logical source name.
type LocalDriver struct {
	basePath string
}

// NewLocalDriver creates a new local volume driver rooted at basePath (or
// DefaultVolumesPath if empty).
func NewLocalDriver(basePath string) (*LocalDriver, error) {
	if basePath == "" {
		basePath = DefaultVolumesPath
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create volumes directory: %w", err)
	}
	return &LocalDriver{basePath: basePath}, nil
}

// Prepare ensures the host-side directory backing the volume named source
// exists and returns its path, ready to be used as a bind-mount source.
func (d *LocalDriver) Prepare(source string) (string, error) {
	path := d.GetPath(source)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create volume directory %s: %w", path, err)
	}
	return path, nil
}

// Delete removes a volume's host-side directory and all its contents.
func (d *LocalDriver) Delete(source string) error {
	path := d.GetPath(source)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete volume directory %s: %w", path, err)
	}
	return nil
}

// GetPath returns the host path for a volume named source.
func (d *LocalDriver) GetPath(source string) string {
	return filepath.Join(d.basePath, source)
}
