package services

import (
	"regexp"
	"strings"
)

const placeholderImage = "/placeholder.jpg"

var uploadsPrefix = regexp.MustCompile(`^.*[\\/]uploads[\\/]`)

// CleanImagePath turns a stored photo location into its public path.
func CleanImagePath(path string) string {
	if path == "" {
		return placeholderImage
	}
	cleaned := uploadsPrefix.ReplaceAllLiteralString(path, "/uploads/")
	return strings.ReplaceAll(cleaned, `\`, "/")
}
