package audio

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"
)

// UniqueName derives a collision-resistant temporary filename from an
// uploaded file's name: temp_<stem>_<epoch>_<rand4><ext>, with spaces replaced
// by underscores. Concurrent uploads of the same file therefore never clash on
// disk.
func UniqueName(originalFilename string) string {
	base := filepath.Base(originalFilename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	timestamp := time.Now().Unix()
	suffix := rand.Intn(9000) + 1000 //nolint:gosec // uniqueness, not secrecy

	name := fmt.Sprintf("temp_%s_%d_%d%s", stem, timestamp, suffix, ext)
	return strings.ReplaceAll(name, " ", "_")
}
