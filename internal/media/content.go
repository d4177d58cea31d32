package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
)

// Fingerprint identifies a file's content at a point in time.
type Fingerprint struct {
	Path    string
	Hash    string
	Size    int64
	ModTime time.Time
}

// CanonicalPath returns the absolute, cleaned form of path.
// Paths are the identity key of stored files, so every entry point
// normalizes through here.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// StatFile checks that path is an existing regular, non-empty file.
func StatFile(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, terrors.New(terrors.ErrCodeFileNotFound, "file not found: "+path, err)
		}
		return nil, terrors.New(terrors.ErrCodeTransientIO, "stat "+path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, terrors.New(terrors.ErrCodeNotAFile, "not a regular file: "+path, nil)
	}
	if info.Size() == 0 {
		return nil, terrors.New(terrors.ErrCodeUnsupportedFormat, "empty file: "+path, nil)
	}
	return info, nil
}

// HashFile streams the file through SHA-256.
func HashFile(path string) (Fingerprint, error) {
	info, err := StatFile(path)
	if err != nil {
		return Fingerprint{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Fingerprint{}, terrors.New(terrors.ErrCodeFileNotFound, "file not found: "+path, err)
		}
		return Fingerprint{}, terrors.New(terrors.ErrCodeTransientIO, "open "+path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, terrors.New(terrors.ErrCodeTransientIO, "read "+path, err)
	}

	return Fingerprint{
		Path:    path,
		Hash:    hex.EncodeToString(h.Sum(nil)),
		Size:    n,
		ModTime: info.ModTime(),
	}, nil
}

// HashBytes returns the hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ReadFile reads a file and fingerprints the exact bytes read, so the hash
// always describes the content that was embedded.
func ReadFile(path string) ([]byte, Fingerprint, error) {
	info, err := StatFile(path)
	if err != nil {
		return nil, Fingerprint{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Fingerprint{}, terrors.New(terrors.ErrCodeFileNotFound, "file not found: "+path, err)
		}
		return nil, Fingerprint{}, terrors.New(terrors.ErrCodeTransientIO, "read "+path, err)
	}
	return data, Fingerprint{
		Path:    path,
		Hash:    HashBytes(data),
		Size:    int64(len(data)),
		ModTime: info.ModTime(),
	}, nil
}

// ValidateDir checks that path is an existing, readable directory.
func ValidateDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return terrors.ValidationError("folder does not exist: "+path, err)
		}
		return terrors.ValidationError("cannot access folder: "+path, err)
	}
	if !info.IsDir() {
		return terrors.ValidationError("not a directory: "+path, nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return terrors.ValidationError("folder is not readable: "+path, err)
	}
	_ = f.Close()
	return nil
}
