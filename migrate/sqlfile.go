package migrate

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// SqlFile is a named handle to a .sql file. The name is the file's base
// name without its final extension; two handles are the same file when
// their names match, regardless of directory.
type SqlFile struct {
	Name string
	Path string

	fs afero.Fs
}

// NewSqlFile builds a handle for path on fsys. The file does not need
// to exist yet; reads report the usual not-exist error.
func NewSqlFile(fsys afero.Fs, path string) SqlFile {
	base := filepath.Base(path)
	return SqlFile{
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
		Path: path,
		fs:   fsys,
	}
}

// Read returns the file's content.
func (f SqlFile) Read() (string, error) {
	b, err := afero.ReadFile(f.fs, f.Path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Equal compares by name.
func (f SqlFile) Equal(other SqlFile) bool { return f.Name == other.Name }

// Less orders by name.
func (f SqlFile) Less(other SqlFile) bool { return f.Name < other.Name }
