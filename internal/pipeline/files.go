package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// moveFile moves src to dst, preferring an atomic rename and falling back to
// copy-then-delete when src and dst live on different devices. Destination
// directories are created on demand.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("rename: %w", err)
	}
	return copyThenDelete(src, dst)
}

func copyThenDelete(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	tempPath := dst + ".tmp-" + fmt.Sprint(time.Now().UnixNano())
	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = out.Close()
		_ = os.Remove(tempPath)
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, dst); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	return nil
}

// uniqueDest returns dst unchanged when it is free, otherwise a variant with
// a short random suffix so an existing file is never overwritten.
func uniqueDest(dst string) string {
	if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
		return dst
	}
	ext := filepath.Ext(dst)
	return strings.TrimSuffix(dst, ext) + "_" + uuid.NewString()[:8] + ext
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
