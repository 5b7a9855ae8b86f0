package ingest

import (
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// ErrTooLarge reports a document over the configured size cap.
var ErrTooLarge = errors.New("document exceeds size limit")

// ReadDocument loads a plain-text document from disk. The core only ever
// sees a decoded string; richer formats are a frontend concern.
func ReadDocument(path string, maxKB int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}
	if maxKB > 0 && info.Size() > int64(maxKB)*1024 {
		return "", fmt.Errorf("%w: %d KB > %d KB", ErrTooLarge, info.Size()/1024, maxKB)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("document %s is not valid UTF-8 text", path)
	}
	return string(data), nil
}
