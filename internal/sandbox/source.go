package sandbox

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/saintfish/chardet"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// scriptSource returns the text of a script file. A leading byte order mark
// is dropped; anything that is not valid UTF-8 is refused with the charset
// it most likely is.
func scriptSource(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	detected := "unknown"
	if result, err := chardet.NewTextDetector().DetectBest(raw); err == nil && result != nil {
		detected = result.Charset
	}
	return "", fmt.Errorf("%w: looks like %s", ErrEncoding, detected)
}
