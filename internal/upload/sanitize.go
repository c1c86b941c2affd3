package upload

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`\W+`)

// ImageExtensions are the extensions a thumbnail is generated for.
var ImageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
}

func foldWord(s string) string {
	return strings.ToLower(nonWord.ReplaceAllString(s, "-"))
}

// SanitizeFilename turns a client filename into a safe storage key. The stem
// and the extension (after the last dot) each get every run of non-word
// characters replaced by a single hyphen and are lower-cased. The result only
// contains [A-Za-z0-9_.-] and SanitizeFilename(SanitizeFilename(s)) equals
// SanitizeFilename(s).
func SanitizeFilename(name string) string {
	stem, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		stem, ext = name[:i], name[i+1:]
	}

	stem = foldWord(stem)
	ext = foldWord(ext)

	out := stem
	if ext != "" {
		out = stem + "." + ext
	}
	if out == "" {
		return "unnamed"
	}
	return out
}

// Extension returns the text after the last dot of name, or "".
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}

// IsImage reports whether name has one of the thumbnail extensions.
// The comparison ignores case.
func IsImage(name string) bool {
	return ImageExtensions[strings.ToLower(Extension(name))]
}
