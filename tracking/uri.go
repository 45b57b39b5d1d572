package tracking

import (
	"fmt"
	"strings"
)

const (
	SchemeFile   = "file"
	SchemeSQLite = "sqlite"
)

// Open returns the store addressed by uri: "file:<dir>", "sqlite:<path>",
// or a bare directory path, which means "file:".
func Open(uri string) (Store, error) {
	scheme, location := ParseURI(uri)
	if location == "" {
		return nil, fmt.Errorf("tracking uri %q has no location", uri)
	}
	switch scheme {
	case SchemeFile:
		return NewFileStore(location)
	case SchemeSQLite:
		return NewSQLiteStore(location)
	default:
		return nil, fmt.Errorf("unsupported tracking uri scheme %q", scheme)
	}
}

func ParseURI(uri string) (scheme, location string) {
	uri = strings.TrimSpace(uri)
	idx := strings.Index(uri, ":")
	// A single-letter prefix is a Windows drive, not a scheme.
	if idx <= 1 {
		return SchemeFile, uri
	}
	return uri[:idx], strings.TrimPrefix(uri[idx+1:], "//")
}
