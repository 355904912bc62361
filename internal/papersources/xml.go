package papersources

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/text/encoding/htmlindex"
)

// DecodeXML unmarshals an XML document into v. Documents declaring a
// non-UTF-8 encoding (PubMed still serves some as ISO-8859-1) are transcoded.
func DecodeXML(body []byte, v any) error {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("xml: unsupported charset %q: %w", charset, err)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("xml: decode: %w", err)
	}
	return nil
}
