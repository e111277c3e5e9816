package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/pageview/model"
)

// Extensions tried, in order, for a page model file.
var modelExtensions = []string{".yaml", ".yml", ".json"}

// ErrNotFound is returned when no file backs a page model url.
var ErrNotFound = errors.New("source: page model not found")

// FileSource loads page models from files under a root directory. The url
// "/orders/list" maps to orders/list.yaml, .yml or .json below the root.
type FileSource struct {
	root string
}

// NewFileSource creates a FileSource that reads below root.
func NewFileSource(root string) *FileSource {
	return &FileSource{root: root}
}

// Root returns the directory this source reads from.
func (s *FileSource) Root() string { return s.root }

// Name returns a human-readable identifier for this source.
func (s *FileSource) Name() string { return "file:" + s.root }

// Load reads and decodes the file backing url. The query is ignored.
func (s *FileSource) Load(_ context.Context, rawURL string, _ url.Values) (*model.PageModel, error) {
	path, err := s.Path(rawURL)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("file source: read %s: %w", path, err)
	}
	pm, err := decodeModel(path, data)
	if err != nil {
		return nil, fmt.Errorf("file source: decode %s: %w", path, err)
	}
	return pm, nil
}

// Hash returns the SHA256 hex digest of the raw file backing url.
func (s *FileSource) Hash(rawURL string) (string, error) {
	path, err := s.Path(rawURL)
	if err != nil {
		return "", err
	}
	return hashFile(path)
}

// Path resolves url to an existing file below the root.
func (s *FileSource) Path(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("file source: parse url %q: %w", rawURL, err)
	}
	rel := filepath.FromSlash(strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+u.Path)), "/"))
	if rel == "" || rel == "." {
		return "", fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	base := filepath.Join(s.root, rel)
	if ext := filepath.Ext(base); isModelFile(base) {
		if _, err := os.Stat(base); err == nil {
			return base, nil
		}
		base = strings.TrimSuffix(base, ext)
	}
	for _, ext := range modelExtensions {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, rawURL)
}

// URL is the inverse of Path: the page model url served by a file below the
// root.
func (s *FileSource) URL(path string) (string, bool) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") || !isModelFile(rel) {
		return "", false
	}
	return "/" + filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel))), true
}

// Files lists the page model files below the root.
func (s *FileSource) Files() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isModelFile(path) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func decodeModel(path string, data []byte) (*model.PageModel, error) {
	var pm model.PageModel
	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, &pm); err != nil {
			return nil, err
		}
		return &pm, nil
	}
	if err := yaml.Unmarshal(data, &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("file source: read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func isModelFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range modelExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
