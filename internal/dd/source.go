package dd

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
)

const memberDir = "data-dictionary"

// source is one place DD definitions can come from.
type source interface {
	// Name identifies the source in logs and listings.
	Name() string
	// Versions lists the versions this source provides. Missing sources yield none.
	Versions() ([]string, error)
	// Read returns the XML for version, or fs.ErrNotExist.
	Read(version string) ([]byte, error)
}

// zipSource reads an IDSDef.zip with members data-dictionary/<version>.xml.
// The zip is reopened on every access so that replaced files are picked up.
type zipSource struct {
	path string
}

func (z zipSource) Name() string { return z.path }

func (z zipSource) Versions() ([]string, error) {
	r, err := zip.OpenReader(z.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", z.path, err)
	}
	defer r.Close()

	var out []string
	for _, f := range r.File {
		if v, ok := versionFromMember(f.Name); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (z zipSource) Read(version string) ([]byte, error) {
	r, err := zip.OpenReader(z.path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := r.Open(memberDir + "/" + version + ".xml")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// fsSource reads data-dictionary/<version>.xml from a file system, such as the
// definitions embedded in the binary.
type fsSource struct {
	name string
	fsys fs.FS
}

func (s fsSource) Name() string { return s.name }

func (s fsSource) Versions() ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, memberDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.name, err)
	}
	var out []string
	for _, e := range entries {
		if v, ok := versionFromMember(path.Join(memberDir, e.Name())); ok && !e.IsDir() {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s fsSource) Read(version string) ([]byte, error) {
	return fs.ReadFile(s.fsys, memberDir+"/"+version+".xml")
}

func versionFromMember(name string) (string, bool) {
	dir, file := path.Split(name)
	if strings.TrimSuffix(dir, "/") != memberDir || !strings.HasSuffix(file, ".xml") {
		return "", false
	}
	v := strings.TrimSuffix(file, ".xml")
	return v, v != ""
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}
