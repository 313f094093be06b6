package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDir is the per-workspace directory holding config and journal
	StateDir = ".solmove"
	// ConfigFileName is the config file inside StateDir
	ConfigFileName = "config.json"
	// JournalFileName is the journal database inside StateDir
	JournalFileName = "journal.db"
)

// GetStateDir returns <root>/.solmove
func GetStateDir(root string) string {
	return filepath.Join(root, StateDir)
}

// EnsureStateDir creates <root>/.solmove if needed and returns it
func EnsureStateDir(root string) (string, error) {
	dir := GetStateDir(root)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// GetConfigPath returns the config file path for a workspace
func GetConfigPath(root string) string {
	return filepath.Join(root, StateDir, ConfigFileName)
}

// GetJournalPath returns the journal database path for a workspace
func GetJournalPath(root string) string {
	return filepath.Join(root, StateDir, JournalFileName)
}

// FindWorkspaceRoot walks up from start looking for a StateDir. When none is
// found, start itself is the root.
func FindWorkspaceRoot(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for dir := abs; ; {
		if info, err := os.Stat(filepath.Join(dir, StateDir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// over path, so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// CanonicalizePath converts an absolute path to a root-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to root
// - Returns root-relative path with forward slashes
func CanonicalizePath(absolutePath string, root string) (string, error) {
	// Resolve symlinks
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		// If the file doesn't exist yet, use the path as-is
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if os.IsNotExist(err) {
			rootResolved = root
		} else {
			return "", err
		}
	}

	relativePath, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}

	return filepath.ToSlash(relativePath), nil
}

// IsWithinRoot checks if a path is within root
func IsWithinRoot(path string, root string) bool {
	canonical, err := CanonicalizePath(path, root)
	if err != nil {
		return false
	}

	// Path is outside root if it starts with ..
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// NormalizePath converts backslashes to forward slashes regardless of the
// platform. Solution and project files always use backslashes.
func NormalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// JoinRootPath joins a root with a canonical path
func JoinRootPath(root string, canonicalPath string) string {
	parts := strings.Split(NormalizePath(canonicalPath), "/")
	return filepath.Join(append([]string{root}, parts...)...)
}
