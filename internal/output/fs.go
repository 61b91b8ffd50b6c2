package output

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Filesystem is the view of the disk the resolver polls.
type Filesystem interface {
	Glob(pattern string) ([]string, error)
	Stat(name string) (fs.FileInfo, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
	MkdirAll(path string, perm fs.FileMode) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	Open(name string) (io.ReadCloser, error)
}

// OS is the Filesystem backed by the host.
type OS struct{}

func (OS) Glob(pattern string) ([]string, error) { return filepath.Glob(pattern) }
func (OS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (OS) WalkDir(root string, fn fs.WalkDirFunc) error { return filepath.WalkDir(root, fn) }
func (OS) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }
func (OS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (OS) Open(name string) (io.ReadCloser, error) { return os.Open(name) }
func (OS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// NewestOutputDir returns the most recently modified "*_output" directory
// directly inside dir, or "" if there is none.
func NewestOutputDir(fsys Filesystem, dir string) (string, error) {
	matches, err := fsys.Glob(filepath.Join(dir, "*_output"))
	if err != nil {
		return "", err
	}
	newest := ""
	var newestMod int64
	for _, m := range matches {
		info, err := fsys.Stat(m)
		if err != nil || !info.IsDir() {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod = m, mod
		}
	}
	return newest, nil
}
