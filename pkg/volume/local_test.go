package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalDriver(t *testing.T) {
	tmpDir := t.TempDir()

	driver, err := NewLocalDriver(tmpDir)
	require.NoError(t, err)
	require.NotNil(t, driver)
	assert.Equal(t, tmpDir, driver.basePath)
	_, err = os.Stat(tmpDir)
	assert.False(t, os.IsNotExist(err), "base directory was not created")
}

func TestNewLocalDriver_DefaultPath(t *testing.T) {
	driver, err := NewLocalDriver("")
	if err != nil {
		t.Skipf("cannot create default volumes directory in this environment: %v", err)
	}
	assert.Equal(t, DefaultVolumesPath, driver.basePath)
}

func TestLocalDriver_Prepare(t *testing.T) {
	tmpDir := t.TempDir()
	driver, _ := NewLocalDriver(tmpDir)

	path, err := driver.Prepare("test-volume")
	require.NoError(t, err)
	assert.Equal(t, driver.GetPath("test-volume"), path)
	_, err = os.Stat(path)
	assert.False(t, os.IsNotExist(err), "volume directory was not created at %s", path)
}

func TestLocalDriver_Prepare_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	driver, _ := NewLocalDriver(tmpDir)

	path1, err := driver.Prepare("test-volume")
	require.NoError(t, err)
	path2, err := driver.Prepare("test-volume")
	require.NoError(t, err)
	assert.Equal(t, path1, path2)
}

func TestLocalDriver_Delete(t *testing.T) {
	tmpDir := t.TempDir()
	driver, _ := NewLocalDriver(tmpDir)

	path, err := driver.Prepare("test-volume")
	require.NoError(t, err)

	testFile := filepath.Join(path, "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("test"), 0644))

	require.NoError(t, driver.Delete("test-volume"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "volume directory still exists after delete")
}

func TestLocalDriver_Delete_NonExistent(t *testing.T) {
	tmpDir := t.TempDir()
	driver, _ := NewLocalDriver(tmpDir)

	assert.NoError(t, driver.Delete("nonexistent"))
}

func TestLocalDriver_GetPath(t *testing.T) {
	tmpDir := t.TempDir()
	driver, _ := NewLocalDriver(tmpDir)

	want := filepath.Join(tmpDir, "myvol")
	assert.Equal(t, want, driver.GetPath("myvol"))
}
