package security

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFileWithPerm(t *testing.T, path string, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), perm); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	// WriteFile is subject to umask
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("Failed to chmod %s: %v", path, err)
	}
}

func TestCreateSecureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")

	if err := CreateSecureDir(dir, PermDirectory); err != nil {
		t.Fatalf("CreateSecureDir() error = %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Directory was not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("Expected a directory")
	}

	// Idempotent on an existing directory
	if err := CreateSecureDir(dir, PermDirectory); err != nil {
		t.Errorf("CreateSecureDir() on existing dir error = %v", err)
	}
}

func TestOpenAppendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployhook.log")

	for _, line := range []string{"first\n", "second\n"} {
		f, err := OpenAppendFile(path, PermLogFile)
		if err != nil {
			t.Fatalf("OpenAppendFile() error = %v", err)
		}
		if _, err := f.WriteString(line); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		f.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("file content = %q, want both lines appended", data)
	}

	info, _ := os.Stat(path)
	if IsWorldReadable(info.Mode().Perm()) {
		t.Errorf("log file should not be world-readable, got %04o", info.Mode().Perm())
	}
}

func TestWorldPermissionBits(t *testing.T) {
	tests := []struct {
		perm         os.FileMode
		wantReadable bool
		wantWritable bool
	}{
		{0600, false, false},
		{0640, false, false},
		{0644, true, false},
		{0666, true, true},
		{0602, false, true},
	}

	for _, tt := range tests {
		if got := IsWorldReadable(tt.perm); got != tt.wantReadable {
			t.Errorf("IsWorldReadable(%04o) = %v, want %v", tt.perm, got, tt.wantReadable)
		}
		if got := IsWorldWritable(tt.perm); got != tt.wantWritable {
			t.Errorf("IsWorldWritable(%04o) = %v, want %v", tt.perm, got, tt.wantWritable)
		}
	}
}

func TestValidateSecretFilePermissions(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		perm    os.FileMode
		wantErr bool
	}{
		{"owner only", 0600, false},
		{"group readable", 0640, false},
		{"world readable", 0644, true},
		{"world writable", 0602, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+".yaml")
			writeFileWithPerm(t, path, tt.perm)

			err := ValidateSecretFilePermissions(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecretFilePermissions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if err := ValidateSecretFilePermissions(filepath.Join(tmpDir, "missing")); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}

func TestValidateExecutablePermissions(t *testing.T) {
	tmpDir := t.TempDir()

	safe := filepath.Join(tmpDir, "safe.sh")
	writeFileWithPerm(t, safe, 0755)
	if err := ValidateExecutablePermissions(safe); err != nil {
		t.Errorf("ValidateExecutablePermissions() error = %v", err)
	}

	unsafe := filepath.Join(tmpDir, "unsafe.sh")
	writeFileWithPerm(t, unsafe, 0777)
	if err := ValidateExecutablePermissions(unsafe); err == nil {
		t.Error("Expected error for world-writable executable")
	}
}
