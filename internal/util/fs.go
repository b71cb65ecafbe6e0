package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates the directory path if it does not exist.
func EnsureDir(path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return os.MkdirAll(path, 0o755)
}

// RemoveIfExists deletes the file if present.
func RemoveIfExists(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	} else if os.IsNotExist(err) {
		return nil
	} else {
		return err
	}
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// FileSize returns the size of path, or 0 when it cannot be stat'ed.
func FileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// ReplaceFile moves src over dst. An existing dst is first renamed to a
// unique ".<name>.*.bak" file in the same directory and restored if the
// final rename fails; the backup is removed on success. Existing files are
// never deleted to make room for the backup.
func ReplaceFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	backup := ""
	if _, err := os.Stat(dst); err == nil {
		if backup, err = stageAside(dst); err != nil {
			return fmt.Errorf("stage existing %s: %w", filepath.Base(dst), err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if backup != "" {
			if rerr := os.Rename(backup, dst); rerr != nil {
				return fmt.Errorf("rename %s: %w (restore failed: %v)", filepath.Base(src), err, rerr)
			}
		}
		return fmt.Errorf("rename %s: %w", filepath.Base(src), err)
	}
	if backup != "" {
		_ = os.Remove(backup)
	}
	return nil
}

// stageAside renames path onto a freshly created, uniquely named file next
// to it and returns that name.
func stageAside(path string) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.bak")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	if err := os.Rename(path, name); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}
