package service

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeText turns uploaded bytes into a string. UTF-8 is accepted as is;
// a UTF-8 or UTF-16 byte order mark selects that decoding and is stripped.
// Invalid UTF-8 or embedded NUL bytes mean the upload is not text.
func decodeText(raw []byte) (string, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(encoding.Nop.NewDecoder()), raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrDecode)
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL bytes", ErrDecode)
	}
	return string(out), nil
}
