package fileutil

import (
	"os"
	"path/filepath"
)

// SystemConfigDir is the system-wide configuration directory.
const SystemConfigDir = "/etc/deployhook"

// SearchPathsOptional looks for a file in multiple locations.
// Returns the first path where the file exists, or empty string if not found.
func SearchPathsOptional(paths []string) string {
	for _, path := range paths {
		if FileExists(path) {
			return path
		}
	}
	return ""
}

// DefaultConfigPaths returns standard config search paths for a given filename.
// Search order:
// 1. Current directory (./<filename>)
// 2. Config subdirectory (./config/<filename>)
// 3. System-wide config (/etc/deployhook/<filename>)
func DefaultConfigPaths(filename string) []string {
	return []string{
		filepath.Join(".", filename),
		filepath.Join(".", "config", filename),
		filepath.Join(SystemConfigDir, filename),
	}
}

// FileExists checks if a file exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsExecutable reports whether path is a regular file with any execute bit set.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
