// Package archive keeps long-term copies of received recordings:
// content-addressed by sha256, zstd-compressed, optionally sealed with
// XChaCha20-Poly1305 since recordings are sensitive conversations.
package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Store is a directory-backed recording archive. Key is nil for a
// plaintext archive.
type Store struct {
	dir string
	key []byte
}

// New returns a store rooted at dir. key must be nil or 32 bytes.
func New(dir string, key []byte) (*Store, error) {
	if key != nil && len(key) != KeySize {
		return nil, fmt.Errorf("archive key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Store{dir: dir, key: key}, nil
}

// Put writes content to the archive, addressed by the sha256 of the raw
// container bytes. Dedupe: an existing object is left untouched.
// Returns the hex hash and storage path.
func (s *Store) Put(content []byte) (sha256Hex, storagePath string, err error) {
	h := sha256.Sum256(content)
	sha256Hex = hex.EncodeToString(h[:])
	// Shard: first 2 chars / full hash
	subDir := filepath.Join(s.dir, sha256Hex[:2])
	if err := os.MkdirAll(subDir, 0755); err != nil {
		return "", "", err
	}
	storagePath = filepath.Join(subDir, sha256Hex+s.ext())

	if _, err := os.Stat(storagePath); err == nil {
		return sha256Hex, storagePath, nil
	}

	blob, err := s.pack(content)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(storagePath, blob, 0600); err != nil {
		os.Remove(storagePath)
		return "", "", err
	}
	return sha256Hex, storagePath, nil
}

// Get loads and unpacks the object with the given hash.
func (s *Store) Get(sha256Hex string) ([]byte, error) {
	blob, err := os.ReadFile(s.Path(sha256Hex))
	if err != nil {
		return nil, err
	}
	return s.unpack(blob)
}

// Remove deletes the object with the given hash. Missing objects are not
// an error.
func (s *Store) Remove(sha256Hex string) error {
	err := os.Remove(s.Path(sha256Hex))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the storage path for a hash.
func (s *Store) Path(sha256Hex string) string {
	return filepath.Join(s.dir, sha256Hex[:2], sha256Hex+s.ext())
}

// Objects walks the archive and returns hash, path, size, and mtime of
// every stored object, for retention scans.
func (s *Store) Objects() ([]Object, error) {
	var out []Object
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		ext := filepath.Ext(name)
		hash := name[:len(name)-len(ext)]
		if ext == ".sealed" {
			// double extension: <hash>.zst.sealed
			hash = name[:len(name)-len(".zst.sealed")]
		}
		if len(hash) != 64 {
			return nil
		}
		out = append(out, Object{
			SHA256:  hash,
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Object describes one archived recording on disk.
type Object struct {
	SHA256  string
	Path    string
	Size    int64
	ModTime int64
}

func (s *Store) ext() string {
	if s.key != nil {
		return ".zst.sealed"
	}
	return ".zst"
}

// pack compresses, then seals when a key is configured.
func (s *Store) pack(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(content); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if s.key == nil {
		return buf.Bytes(), nil
	}
	return seal(s.key, buf.Bytes())
}

func (s *Store) unpack(blob []byte) ([]byte, error) {
	if s.key != nil {
		var err error
		blob, err = unseal(s.key, blob)
		if err != nil {
			return nil, err
		}
	}
	r, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
