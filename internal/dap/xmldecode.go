package dap

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
)

// decodeXML parses one DBGp payload into a normalized *dbgp.Element tree.
//
// The DBGp XML dialect is attribute-heavy and non-validating, so this is a
// thin, non-schema-aware walk over encoding/xml's token stream rather than
// an Unmarshal into a fixed struct: the same root element (init, response,
// stream) carries wildly different children depending on the command, and
// properties nest recursively to an engine-negotiated depth. No third-party
// XML library appears anywhere in the retrieved corpus (see DESIGN.md), so
// this is the one place the implementation reaches for the standard
// library instead of an ecosystem package.
func decodeXML(payload string) (*dbgp.Element, error) {
	dec := xml.NewDecoder(strings.NewReader(payload))
	dec.Strict = false

	var stack []*dbgp.Element
	var root *dbgp.Element

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("dap: xml decode: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &dbgp.Element{
				Name:  t.Name.Local,
				Attrs: make(map[string]string, len(t.Attr)),
			}
			for _, a := range t.Attr {
				el.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			} else {
				root = el
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("dap: empty xml payload")
	}
	return root, nil
}

// decodeText returns an element's text, base64-decoded if the element
// declares encoding="base64". A decode failure returns the raw text
// unmodified along with the error, so callers can choose to surface it
// without losing the original payload.
func decodeText(el *dbgp.Element) (string, error) {
	if el == nil {
		return "", nil
	}
	if !el.IsBase64() {
		return el.Text, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(el.Text))
	if err != nil {
		return el.Text, fmt.Errorf("dap: base64 decode: %w", err)
	}
	return string(raw), nil
}

// encodeBase64 base64-encodes a value for transmission as command data.
func encodeBase64(v string) string {
	return base64.StdEncoding.EncodeToString([]byte(v))
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atob(s string) bool {
	return s == "1" || s == "true"
}
