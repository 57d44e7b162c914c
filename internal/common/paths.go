package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppDirName is the per-user state directory under $HOME.
const AppDirName = ".flakeview"

// File permission constants
const (
	// FilePermissionSecure is used for private keys, credentials and history records
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for public keys and generated reports
	FilePermissionNormal = 0644

	// DirPermissionSecure is used for directories holding key material
	DirPermissionSecure = 0700

	// DirPermissionNormal is used for normal directories
	DirPermissionNormal = 0755
)

// AppDir returns ~/.flakeview, falling back to the working directory when
// no home directory can be determined.
func AppDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return AppDirName
	}
	return filepath.Join(home, AppDirName)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// CleanPath sanitizes a file path to prevent directory traversal attacks
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("invalid path: empty")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid path: contains directory traversal")
		}
	}

	cleaned := filepath.Clean(ExpandHome(path))
	if !filepath.IsAbs(cleaned) {
		abs, err := filepath.Abs(cleaned)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		cleaned = abs
	}

	return cleaned, nil
}

// ValidatePath ensures a path is within an allowed directory
func ValidatePath(path, baseDir string) (string, error) {
	cleanedPath, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	cleanedBase, err := CleanPath(baseDir)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(cleanedBase, cleanedPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path is outside allowed directory")
	}

	return cleanedPath, nil
}

// JoinPath safely joins path components
func JoinPath(base string, elements ...string) (string, error) {
	cleanedBase, err := CleanPath(base)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(append([]string{cleanedBase}, elements...)...)
	return ValidatePath(joined, cleanedBase)
}
