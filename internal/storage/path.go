package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	unsafeNameChars      = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// BuildUploadPath returns a unique object key for an uploaded file:
// uploads/<session>/<uuid>-<sanitized name>.
func BuildUploadPath(sessionID, fileName string) (string, error) {
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	name := SanitizeFileName(fileName)
	if name == "" {
		return "", fmt.Errorf("invalid file name: %q", fileName)
	}
	return path.Join("uploads", sessionID, uuid.NewString()+"-"+name), nil
}

// SessionUploadPrefix is the key prefix shared by every upload of sessionID.
func SessionUploadPrefix(sessionID string) (string, error) {
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	return path.Join("uploads", sessionID) + "/", nil
}

// SanitizeFileName keeps the base name of fileName with unsafe characters
// replaced by underscores.
func SanitizeFileName(fileName string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if len(base) > 128 {
		base = base[len(base)-128:]
	}
	return base
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
