// Package vault maps entity names to markdown files under a storage
// root and provides atomic raw-text operations on them.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	entityExt  = ".md"
	tempPrefix = ".tmp-"
)

var (
	// ErrNotFound indicates the named entity has no file in the vault.
	ErrNotFound = errors.New("entity file not found")
	// ErrInvalidName indicates the entity name cannot be used as a
	// path segment.
	ErrInvalidName = errors.New("invalid entity name")
)

// Vault is a directory of entity files, one per entity.
type Vault struct {
	root string
}

// Open creates the vault directory if needed and returns a Vault
// rooted at it.
func Open(root string) (*Vault, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	return &Vault{root: root}, nil
}

// Root returns the vault's base directory.
func (v *Vault) Root() string {
	return v.root
}

// Identifier validates an entity name and returns its stable file
// identifier (the filename without extension). The mapping is the
// identity on valid names, so it is trivially injective.
func (v *Vault) Identifier(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\\\x00\n\r") {
		return "", fmt.Errorf("%w: %q contains a path separator, NUL, or newline", ErrInvalidName, name)
	}
	if strings.HasPrefix(name, tempPrefix) {
		return "", fmt.Errorf("%w: %q uses the reserved temp-file prefix", ErrInvalidName, name)
	}
	return name, nil
}

func (v *Vault) path(name string) (string, error) {
	id, err := v.Identifier(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(v.root, id+entityExt), nil
}

// Exists reports whether an entity file exists for the name.
func (v *Vault) Exists(name string) (bool, error) {
	p, err := v.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat entity file: %w", err)
}

// Read returns the raw text of an entity file.
func (v *Vault) Read(name string) (string, error) {
	p, err := v.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("read entity file: %w", err)
	}
	return string(data), nil
}

// Write atomically replaces an entity file's text: the new content is
// written to a temp file under the same root and renamed into place, so
// a crash mid-write never leaves a half-written file visible.
func (v *Vault) Write(name, text string) error {
	p, err := v.path(name)
	if err != nil {
		return err
	}

	tmp := filepath.Join(v.root, tempPrefix+uuid.New().String())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace entity file: %w", err)
	}
	return nil
}

// Delete removes an entity file.
func (v *Vault) Delete(name string) error {
	p, err := v.path(name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("delete entity file: %w", err)
	}
	return nil
}

// List enumerates the identifiers of all entity files currently in the
// vault, in directory order. Temp files and subdirectories are skipped.
func (v *Vault) List() ([]string, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return nil, fmt.Errorf("list vault: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, entityExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, entityExt))
	}
	return ids, nil
}
