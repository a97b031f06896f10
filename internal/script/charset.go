package script

import (
	"bytes"
	"io"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// ToUTF8 returns data as UTF-8. Valid UTF-8 passes through without its BOM;
// anything else is decoded from the charset chardet detects.
func ToUTF8(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return bytes.TrimPrefix(data, utf8BOM), nil
	}

	best, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return nil, err
	}
	enc, err := ianaindex.MIB.Encoding(best.Charset)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return bytes.TrimPrefix(data, utf8BOM), nil
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return nil, err
	}
	return bytes.TrimPrefix(out, utf8BOM), nil
}
