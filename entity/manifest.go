package entity

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// Manifest lists the images of one entity slot: the batch directory they live in
// and their filenames in upload order.
//
// At rest it is stored as the flat JSON array ["<directory>/", "<file1>", ...].
type Manifest struct {
	Directory string   `json:"directory"`
	Filenames []string `json:"filenames"`
}

// BuildManifest assembles a manifest, terminating the directory with "/".
func BuildManifest(directory string, filenames []string) (Manifest, error) {
	directory = strings.TrimSpace(directory)
	if directory == "" {
		return Manifest{}, fmt.Errorf("%w: empty directory", ErrManifestCorrupt)
	}
	if !strings.HasSuffix(directory, "/") {
		directory += "/"
	}
	files := make([]string, 0, len(filenames))
	for _, f := range filenames {
		if f == "" || strings.Contains(f, "/") {
			return Manifest{}, fmt.Errorf("%w: invalid filename %q", ErrManifestCorrupt, f)
		}
		files = append(files, f)
	}
	return Manifest{Directory: directory, Filenames: files}, nil
}

func (m Manifest) IsEmpty() bool {
	return m.Directory == ""
}

// MarshalLegacy renders the flat array form. An empty manifest renders as [].
func (m Manifest) MarshalLegacy() ([]byte, error) {
	if m.IsEmpty() {
		return []byte("[]"), nil
	}
	flat := make([]string, 0, len(m.Filenames)+1)
	flat = append(flat, m.Directory)
	flat = append(flat, m.Filenames...)
	return json.Marshal(flat)
}

// JSON is MarshalLegacy for GORM columns.
func (m Manifest) JSON() datatypes.JSON {
	raw, err := m.MarshalLegacy()
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

// ParseManifest reads the flat array form. NULL, empty input and [] yield an empty manifest.
func ParseManifest(raw []byte) (Manifest, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Manifest{}, nil
	}

	var flat []string
	if err := json.Unmarshal([]byte(trimmed), &flat); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	if len(flat) == 0 {
		return Manifest{}, nil
	}
	if !strings.HasSuffix(flat[0], "/") {
		return Manifest{}, fmt.Errorf("%w: directory %q lacks trailing separator", ErrManifestCorrupt, flat[0])
	}
	return BuildManifest(flat[0], flat[1:])
}

// ObjectPaths returns the storage path of every file under baseDir.
func (m Manifest) ObjectPaths(baseDir string) []string {
	paths := make([]string, 0, len(m.Filenames))
	for _, f := range m.Filenames {
		paths = append(paths, ObjectPath(baseDir, m.Directory, f))
	}
	return paths
}

// ResolveURLs yields baseURL + baseDir + directory + filename for every file.
func (m Manifest) ResolveURLs(baseURL, baseDir string) []string {
	urls := make([]string, 0, len(m.Filenames))
	base := strings.TrimSuffix(baseURL, "/")
	for _, f := range m.Filenames {
		urls = append(urls, base+"/"+ObjectPath(baseDir, m.Directory, f))
	}
	return urls
}

// ObjectPath joins the parts with exactly one "/" between them.
func ObjectPath(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "/")
}

func manifestFromParts(directory string, filenames datatypes.JSON) (Manifest, error) {
	var files []string
	if len(filenames) > 0 {
		if err := json.Unmarshal(filenames, &files); err != nil {
			return Manifest{}, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
		}
	}
	return BuildManifest(directory, files)
}
