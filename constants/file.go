package constants

import (
	"path"
	"strings"
)

// ArtifactRole distinguishes the buckets a stored file can live in.
type ArtifactRole string

const (
	RoleRaw       ArtifactRole = "RAW"       // as uploaded, or a frame cut from a video
	RoleProcessed ArtifactRole = "PROCESSED" // crop/region emitted by the recognizer
	RoleResult    ArtifactRole = "RESULT"    // bundled output
)

// AllowedExtensions holds the upload extensions the pipeline accepts.
var AllowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"mp4":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ExtOf returns the normalized extension of an object key.
func ExtOf(key string) string {
	return NormalizeExt(path.Ext(key))
}

func IsVideo(key string) bool {
	return ExtOf(key) == "mp4"
}
