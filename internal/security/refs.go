package security

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`^refs/[A-Za-z0-9/_.+-]+$`)

// ValidateBranchRef ensures a configured ref is a fully-qualified git ref such
// as refs/heads/main. Short names like "main" never match a push payload.
func ValidateBranchRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("branch ref cannot be empty")
	}
	if !strings.HasPrefix(ref, "refs/") {
		return fmt.Errorf("branch ref must be fully qualified (e.g. refs/heads/%s), got %q", ref, ref)
	}
	if strings.HasSuffix(ref, "/") || strings.Contains(ref, "//") || strings.Contains(ref, "..") {
		return fmt.Errorf("branch ref %q is malformed", ref)
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("branch ref contains invalid characters")
	}
	return nil
}
