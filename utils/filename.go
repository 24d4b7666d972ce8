package utils

import (
	"fmt"
	"strings"
)

const maxStemLength = 50

// CleanFilename reduces a caller-supplied filename to a safe ASCII stem while keeping its extension.
// The stem keeps only [A-Za-z0-9._-], is capped at 50 characters and falls back to "image".
func CleanFilename(filename string) string {
	if filename == "" {
		return "image"
	}
	stem, ext := SplitExt(filename)

	var b strings.Builder
	for _, r := range stem {
		if isSafeFilenameRune(r) {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		clean = "image"
	}
	if len(clean) > maxStemLength {
		clean = clean[:maxStemLength]
	}
	return clean + ext
}

// SplitExt splits at the last dot. Leading dots do not start an extension, so ".env" has none.
func SplitExt(filename string) (string, string) {
	i := strings.LastIndex(filename, ".")
	if i <= 0 || strings.Trim(filename[:i], ".") == "" {
		return filename, ""
	}
	return filename[:i], filename[i:]
}

func isSafeFilenameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}

// FormatSize renders a byte count as "<n>B", "<n>KB" or "<n>MB" with integer truncation.
func FormatSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%dB", size)
	case size < 1024*1024:
		return fmt.Sprintf("%dKB", size/1024)
	default:
		return fmt.Sprintf("%dMB", size/(1024*1024))
	}
}

// FirstNonBlank returns the first value that is not empty after trimming, unchanged.
func FirstNonBlank(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
