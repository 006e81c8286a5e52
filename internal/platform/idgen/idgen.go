// Package idgen builds the human-readable keys used across the clinic:
// case codes, stored file names and patient file numbers.
package idgen

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	dayLayout   = "20060102"
	stampLayout = "20060102150405"

	// fileNoBase offsets patient ids into the file number range.
	fileNoBase = 10000
)

// CasePrefix returns CASE-<patientID>-<YYYYMMDD>.
func CasePrefix(patientID int64, day time.Time) string {
	return fmt.Sprintf("CASE-%d-%s", patientID, day.Format(dayLayout))
}

// CaseID returns the case code for the seq-th case of a patient on day.
func CaseID(patientID int64, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%02d", CasePrefix(patientID, day), seq)
}

// FileNo is the clinic file number for a patient id. It doubles as the
// patient's login username.
func FileNo(patientID int64) string {
	return strconv.FormatInt(fileNoBase+patientID, 10)
}

// Suffix returns a random 4-digit number in [1000, 9999].
func Suffix() int {
	return 1000 + rand.Intn(9000)
}

// FileName builds <YYYYMMDDHHMMSS>_<suffix>_<sanitized original>.
func FileName(now time.Time, suffix int, original string) string {
	return fmt.Sprintf("%s_%04d_%s", now.Format(stampLayout), suffix, Sanitize(original))
}

// Sanitize reduces an uploaded file name to a safe ASCII base name.
// Accented letters are decomposed and keep their base letter. Path separators become separators between words, runs of whitespace
// become a single underscore and anything outside [A-Za-z0-9._-] is
// dropped. Leading and trailing dots and underscores are trimmed.
func Sanitize(name string) string {
	name = norm.NFKD.String(name)
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}

// Ext returns the lower-cased extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
