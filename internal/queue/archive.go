package queue

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"dlq/internal/textutil"
)

var splitArchivePattern = regexp.MustCompile(`(?i)\.part\d+\.`)

// SplitArchive reports whether fileName follows the name.partN.suffix pattern
// and returns the shared package name and suffix.
func SplitArchive(fileName string) (name, suffix string, ok bool) {
	loc := splitArchivePattern.FindStringIndex(fileName)
	if loc == nil {
		return "", "", false
	}
	name = fileName[:loc[0]]
	if dot := strings.LastIndexByte(fileName, '.'); dot >= 0 {
		suffix = fileName[dot+1:]
	}
	return name, suffix, name != ""
}

// PackageNameFor derives a package name and suffix from a file name.
func PackageNameFor(fileName string) (name, suffix string) {
	if name, suffix, ok := SplitArchive(fileName); ok {
		return name, suffix
	}
	dot := strings.LastIndexByte(fileName, '.')
	if dot <= 0 {
		return fileName, ""
	}
	return fileName[:dot], fileName[dot+1:]
}

// FileNameFromURL returns the sanitized last path segment of rawURL, or the
// host when the path is empty.
func FileNameFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return SanitizeFileName(rawURL)
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		base = u.Host
	}
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	return SanitizeFileName(base)
}

// SanitizeFileName makes name safe to use as a single path segment.
func SanitizeFileName(name string) string {
	name = textutil.SanitizeFileName(name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return "download"
	}
	return name
}
