// Package cas provides content-addressed storage for source metadata
// documents. Blobs are stored by SHA-256 so that re-indexing the same
// document is a no-op; a BLAKE3 pointer file maps the catalog key back to
// the blob.
package cas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

// tempFileWrite is a function variable for writing to temp files (for testing).
var tempFileWrite = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// tempFileClose is a function variable for closing temp files (for testing).
var tempFileClose = func(f io.Closer) error {
	return f.Close()
}

// ErrBlobNotFound is returned when no document with the given digest is stored.
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidHash is returned when a digest is not 64 lowercase hex characters.
var ErrInvalidHash = errors.New("invalid hash format")

// Store keeps documents under <root>/blobs/sha256 and pointers under
// <root>/blobs/blake3.
type Store struct {
	root string
}

type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// NewStore opens the store at root, creating its directories if needed.
func NewStore(root string) (*Store, error) {
	for _, algo := range []string{"sha256", "blake3"} {
		if err := os.MkdirAll(filepath.Join(root, "blobs", algo), 0755); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores data and returns its digests. Storing the same bytes twice
// leaves the store unchanged.
func (s *Store) Put(data []byte) (Digest, error) {
	d := Sum(data)

	if err := writeOnce(s.path("sha256", d.SHA256), ".blob-*", data); err != nil {
		return Digest{}, fmt.Errorf("failed to store blob: %w", err)
	}

	pointer, err := json.Marshal(blake3Pointer{SHA256: d.SHA256})
	if err != nil {
		return Digest{}, fmt.Errorf("failed to marshal pointer: %w", err)
	}
	if err := writeOnce(s.path("blake3", d.BLAKE3)+".json", ".pointer-*", pointer); err != nil {
		return Digest{}, fmt.Errorf("failed to create BLAKE3 pointer: %w", err)
	}
	return d, nil
}

// Get returns the document with the given SHA-256 digest.
func (s *Store) Get(sha string) ([]byte, error) {
	if !isValidHash(sha) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.path("sha256", sha))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Has reports whether a document with the given SHA-256 digest is stored.
func (s *Store) Has(sha string) bool {
	if !isValidHash(sha) {
		return false
	}
	_, err := os.Stat(s.path("sha256", sha))
	return err == nil
}

// LookupBlake3 resolves a BLAKE3 digest to the SHA-256 digest of the blob.
func (s *Store) LookupBlake3(b3 string) (string, error) {
	if !isValidHash(b3) {
		return "", ErrInvalidHash
	}
	data, err := os.ReadFile(s.path("blake3", b3) + ".json")
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrBlobNotFound
		}
		return "", fmt.Errorf("failed to read pointer: %w", err)
	}
	var p blake3Pointer
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("failed to parse pointer: %w", err)
	}
	return p.SHA256, nil
}

// GetByBlake3 returns the document with the given BLAKE3 digest.
func (s *Store) GetByBlake3(b3 string) ([]byte, error) {
	sha, err := s.LookupBlake3(b3)
	if err != nil {
		return nil, err
	}
	return s.Get(sha)
}

// path returns <root>/blobs/<algo>/<first2>/<hash>.
func (s *Store) path(algo, hash string) string {
	return filepath.Join(s.root, "blobs", algo, hash[:2], hash)
}

// writeOnce writes data to target through a temp file and rename, unless
// target already exists.
func writeOnce(target, pattern string, data []byte) error {
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prefix directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFileWrite(tempFile, data); err != nil {
		tempFileClose(tempFile)
		os.Remove(tempPath)
		return fmt.Errorf("failed to write: %w", err)
	}
	if err := tempFileClose(tempFile); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := osRename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}
