package security

import "testing"

func TestValidateBranchRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"main branch", "refs/heads/main", false},
		{"nested branch", "refs/heads/release/v1.2", false},
		{"tag", "refs/tags/v1.0.0", false},

		{"empty", "", true},
		{"short name", "main", true},
		{"trailing slash", "refs/heads/", true},
		{"double slash", "refs//main", true},
		{"dot dot", "refs/heads/../main", true},
		{"whitespace", "refs/heads/ma in", true},
		{"newline", "refs/heads/main\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBranchRef(tt.ref)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBranchRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			}
		})
	}
}
