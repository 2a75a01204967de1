// Package fileid derives stable document IDs for files on disk.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes the name-based UUIDs of file documents.
var namespace = uuid.MustParse("6f1b1d8e-4c0a-4d55-9a8e-2f3c5b7d9e01")

// DocID returns the document ID for path. The same cleaned path always gives the same
// ID, so a file re-ingested after a restart replaces its earlier document.
func DocID(path string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(path))).String()
}
