package catalog

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// buildObjectKey produces the storage key for an uploaded media file. Keys
// are opaque to clients; only the delivery layer resolves them into signed
// URLs. The timestamp segment keeps a re-upload of the same filename for the
// same entity from colliding with the live object.
func buildObjectKey(category string, id uuid.UUID, fileName string) string {
	cleanName := sanitizeFileName(fileName)
	if cleanName == "" {
		cleanName = id.String()
	}
	return fmt.Sprintf("%s/%s/%d_%s", category, id.String(), time.Now().UTC().Unix(), cleanName)
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.TrimSpace(name))
	if clean == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	result := strings.Trim(b.String(), "-_.")
	return result
}
