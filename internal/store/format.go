package store

import "bytes"

// magicBytes holds the fixed-prefix signatures used by DetectFormat.
// RIFF/ftyp containers (webp, heic, avif) are checked separately since
// their signature isn't a simple prefix.
var magicBytes = map[string][]byte{
	"jpeg": {0xFF, 0xD8, 0xFF},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
}

// extByFormat maps a detected format to the filename extension the store
// uses when a new original is registered.
var extByFormat = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"webp": ".webp",
	"heic": ".heic",
	"avif": ".avif",
}

// DetectFormat sniffs an image's container format from its magic bytes.
// Used only to pick a filename extension when an original lands in the
// store; it is not a validation gate (validating uploads is the external
// collaborator's job per spec.md §1 Non-goals).
func DetectFormat(data []byte) string {
	if len(data) < 12 {
		return ""
	}
	if bytes.HasPrefix(data, magicBytes["jpeg"]) {
		return "jpeg"
	}
	if bytes.HasPrefix(data, magicBytes["png"]) {
		return "png"
	}
	if bytes.HasPrefix(data, magicBytes["gif"]) {
		return "gif"
	}
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "webp"
	}
	if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
		switch string(data[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1":
			return "heic"
		case "avif", "avis":
			return "avif"
		}
	}
	return ""
}

// ExtensionFor returns the filename extension (with leading dot) for a
// detected format, or ".bin" if the format is unrecognized.
func ExtensionFor(format string) string {
	if ext, ok := extByFormat[format]; ok {
		return ext
	}
	return ".bin"
}
