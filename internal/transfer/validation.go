package transfer

import "strings"

// SanitizeFilename strips anything from a sender-declared filename that
// could escape the output directory. The device only ever sends flat
// names like rec_0001.raw, so path separators and traversal sequences
// are treated as hostile.
func SanitizeFilename(name string) string {
	clean := strings.ReplaceAll(name, "/", "_")
	clean = strings.ReplaceAll(clean, "\\", "_")
	clean = strings.ReplaceAll(clean, "\x00", "_")
	for strings.Contains(clean, "..") {
		clean = strings.ReplaceAll(clean, "..", "_")
	}
	clean = strings.TrimSpace(clean)
	if clean == "" || clean == "." {
		return "unnamed.raw"
	}
	return clean
}
