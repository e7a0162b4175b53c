package security

import (
	"fmt"
	"os"
)

const (
	// PermLogFile is for log files that may contain deployment information.
	// rw-r----- (0640): owner can read/write, group can read, others have no access.
	PermLogFile os.FileMode = 0640

	// PermDirectory is for standard directories.
	// rwxr-x--- (0750): owner can read/write/execute, group can read/execute, others have no access.
	PermDirectory os.FileMode = 0750
)

// CreateSecureDir creates a directory (and parents) with the given permissions.
// Existing directories are left as they are.
func CreateSecureDir(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// OpenAppendFile opens path for appending, creating it with perm if needed.
func OpenAppendFile(path string, perm os.FileMode) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// IsWorldReadable checks if a file is readable by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// IsWorldWritable checks if a file is writable by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// ValidateSecretFilePermissions checks that a file holding the webhook secret
// is neither world-readable nor world-writable.
func ValidateSecretFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()

	if IsWorldReadable(perm) {
		return fmt.Errorf("file %s is world-readable (%04o), which exposes the webhook secret", path, perm)
	}

	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o), which is a serious security risk", path, perm)
	}

	return nil
}

// ValidateExecutablePermissions checks that nobody but the owner and group
// can replace the program that gets executed.
func ValidateExecutablePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if perm := info.Mode().Perm(); IsWorldWritable(perm) {
		return fmt.Errorf("executable %s is world-writable (%04o), anyone can change what gets deployed", path, perm)
	}

	return nil
}
