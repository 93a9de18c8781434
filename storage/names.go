package storage

import "strings"

// Names of the bookkeeping files kept in every user directory.
const (
	MetadataFile = "metadata.txt"
	MessagesFile = "messages.txt"
	LogFile      = "log.txt"
)

const maxNameLength = 255

// ValidUsername reports whether name can be used as a user directory name
// and as a field of the credential and metadata files.
func ValidUsername(name string) bool {
	return len(name) <= 64 && validComponent(name)
}

// ValidFilename reports whether name can be stored in a user directory
// without escaping it or clobbering the bookkeeping files.
func ValidFilename(name string) bool {
	if !validComponent(name) {
		return false
	}
	switch name {
	case MetadataFile, MessagesFile, LogFile:
		return false
	}
	return !strings.HasPrefix(name, tempPrefix)
}

func validComponent(name string) bool {
	if name == "" || len(name) > maxNameLength || strings.TrimSpace(name) != name {
		return false
	}
	if name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, "/\\|:\x00\r\n")
}
