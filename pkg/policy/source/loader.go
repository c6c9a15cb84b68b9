package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"palisade-hq/palisade/pkg/policy"
)

// LoaderConfig contains configuration for the policy file loader.
type LoaderConfig struct {
	// MaxFileSize is the maximum size of a single policy file in bytes.
	MaxFileSize int64

	// Extensions is the list of file extensions treated as policy files.
	Extensions []string
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		MaxFileSize: 1 << 20, // 1 MiB
		Extensions:  []string{".yaml", ".yml"},
	}
}

// catalogFile is the on-disk document shape. A file carries any number of
// definitions under the policies key.
type catalogFile struct {
	Version  int                        `yaml:"version"`
	Policies []*policy.PolicyDefinition `yaml:"policies"`
}

// Loader reads policy definition files from the file system.
type Loader struct {
	config *LoaderConfig
}

// NewLoader creates a loader with the given configuration.
func NewLoader(config *LoaderConfig) *Loader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	return &Loader{config: config}
}

// LoadFile loads every definition from a single policy file.
func (l *Loader) LoadFile(path string) ([]*policy.PolicyDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		if os.IsPermission(err) {
			return nil, &LoadError{FilePath: path, Message: "permission denied", Cause: err}
		}
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}

	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > l.config.MaxFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message: fmt.Sprintf("file size %d bytes exceeds maximum %d bytes",
				info.Size(), l.config.MaxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8 encoding"}
	}

	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{FilePath: path, Message: "YAML parsing failed", Cause: err}
	}
	if doc.Version > 1 {
		return nil, &ParseError{
			FilePath: path,
			Message:  fmt.Sprintf("unsupported catalog file version %d", doc.Version),
		}
	}

	return doc.Policies, nil
}

// LoadDir loads every policy file under the given directory, recursively.
// Files are visited in lexical order so repeated loads of the same tree
// produce the same definition order. The first failing file aborts the
// load; a catalog is either complete or not loaded at all.
func (l *Loader) LoadDir(dir string) ([]*policy.PolicyDefinition, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{FilePath: dir, Message: "directory not found", Cause: err}
		}
		return nil, &LoadError{FilePath: dir, Message: "failed to access directory", Cause: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{FilePath: dir, Message: "not a directory"}
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if l.hasValidExtension(filepath.Ext(path)) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, &LoadError{FilePath: dir, Message: "directory walk failed", Cause: err}
	}
	sort.Strings(files)

	var defs []*policy.PolicyDefinition
	for _, file := range files {
		loaded, err := l.LoadFile(file)
		if err != nil {
			return nil, err
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}

// Load loads from a single file or a directory tree depending on what the
// path points at.
func (l *Loader) Load(path string) ([]*policy.PolicyDefinition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to access path", Cause: err}
	}
	if info.IsDir() {
		return l.LoadDir(path)
	}
	return l.LoadFile(path)
}

func (l *Loader) hasValidExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, valid := range l.config.Extensions {
		if ext == strings.ToLower(valid) {
			return true
		}
	}
	return false
}
