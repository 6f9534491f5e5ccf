package formatter

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrEmptyDocument   = errors.New("document is empty")
	ErrInvalidEncoding = errors.New("document is not valid UTF-8 or UTF-16 text")
)

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw document bytes to a string. UTF-8 (with or without a
// byte order mark) and BOM-prefixed UTF-16 are accepted; anything else, or
// content carrying NUL bytes, is rejected.
func Decode(raw []byte) (string, error) {
	utf16 := bytes.HasPrefix(raw, bomUTF16LE) || bytes.HasPrefix(raw, bomUTF16BE)
	if !utf16 && !utf8.Valid(raw) {
		return "", ErrInvalidEncoding
	}

	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return "", ErrInvalidEncoding
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return "", ErrEmptyDocument
	}
	return string(out), nil
}
