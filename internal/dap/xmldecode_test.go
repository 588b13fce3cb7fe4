package dap

import (
	"testing"

	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
)

// TestDecodeXML_AttrsAndNesting verifies attribute extraction and that
// nested elements of the same name are walked correctly.
func TestDecodeXML_AttrsAndNesting(t *testing.T) {
	payload := `<response command="context_get" transaction_id="3" success="1">` +
		`<property name="x" type="int" children="1" numchildren="1">` +
		`<property name="0" type="string" encoding="base64">aGVsbG8=</property>` +
		`</property></response>`

	root, err := decodeXML(payload)
	if err != nil {
		t.Fatalf("decodeXML: %v", err)
	}
	if root.Name != "response" {
		t.Fatalf("root name = %q, want response", root.Name)
	}
	if root.Attr("command") != "context_get" {
		t.Errorf("command attr = %q", root.Attr("command"))
	}

	outer := root.Child("property")
	if outer == nil {
		t.Fatal("expected a property child")
	}
	if outer.Attr("name") != "x" {
		t.Errorf("outer name = %q", outer.Attr("name"))
	}
	inner := outer.Child("property")
	if inner == nil {
		t.Fatal("expected a nested property")
	}
	if !inner.IsBase64() {
		t.Error("expected inner property to be flagged base64")
	}
}

// TestDecodeText_Base64Decoding verifies a base64-encoded element decodes
// to its plain text.
func TestDecodeText_Base64Decoding(t *testing.T) {
	el := &dbgp.Element{
		Name:  "property",
		Attrs: map[string]string{"encoding": "base64"},
		Text:  "aGVsbG8=",
	}
	text, err := decodeText(el)
	if err != nil {
		t.Fatalf("decodeText: %v", err)
	}
	if text != "hello" {
		t.Errorf("got %q, want hello", text)
	}
}

// TestDecodeText_PlainPassthrough verifies an element without a base64
// encoding passes its text through unmodified.
func TestDecodeText_PlainPassthrough(t *testing.T) {
	el := &dbgp.Element{Name: "property", Text: "plain"}
	text, err := decodeText(el)
	if err != nil {
		t.Fatalf("decodeText: %v", err)
	}
	if text != "plain" {
		t.Errorf("got %q, want plain", text)
	}
}

// TestDecodeText_InvalidBase64PreservesRawText verifies a decode failure
// returns the original text alongside the error, rather than losing data.
func TestDecodeText_InvalidBase64PreservesRawText(t *testing.T) {
	el := &dbgp.Element{
		Name:  "property",
		Attrs: map[string]string{"encoding": "base64"},
		Text:  "not-valid-base64!!",
	}
	text, err := decodeText(el)
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if text != el.Text {
		t.Errorf("expected raw text preserved on decode failure, got %q", text)
	}
}

// TestParseProperty_RecursiveChildren verifies nested <property> elements
// become a Property tree with matching values.
func TestParseProperty_RecursiveChildren(t *testing.T) {
	payload := `<response command="eval" transaction_id="1" success="1">` +
		`<property name="arr" type="array" children="1" numchildren="2">` +
		`<property name="0" type="int">1</property>` +
		`<property name="1" type="int">2</property>` +
		`</property></response>`
	root, err := decodeXML(payload)
	if err != nil {
		t.Fatalf("decodeXML: %v", err)
	}
	prop := parseProperty(root.Child("property"))
	if prop == nil {
		t.Fatal("expected a parsed property")
	}
	if len(prop.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(prop.Children))
	}
	if prop.Children[0].Value != "1" || prop.Children[1].Value != "2" {
		t.Errorf("unexpected child values: %+v", prop.Children)
	}
}

// TestParseResponse_ErrorElement verifies an engine <error> child is
// decoded into Response.Error without masking a non-success response.
func TestParseResponse_ErrorElement(t *testing.T) {
	payload := `<response command="breakpoint_set" transaction_id="7" success="0">` +
		`<error code="200"><message>breakpoint could not be set</message></error>` +
		`</response>`
	root, err := decodeXML(payload)
	if err != nil {
		t.Fatalf("decodeXML: %v", err)
	}
	resp := parseResponse(root)
	if resp.Success {
		t.Error("expected Success=false")
	}
	if resp.Error == nil || resp.Error.Code != 200 {
		t.Fatalf("unexpected error field: %+v", resp.Error)
	}
	if resp.Error.Message != "breakpoint could not be set" {
		t.Errorf("unexpected error message: %q", resp.Error.Message)
	}
}

// TestParseResponse_LocationFromXdebugMessage verifies the xdebug:message
// child (namespaced locally to just "message" by the tokenizer) is decoded
// into Response.Location.
func TestParseResponse_LocationFromXdebugMessage(t *testing.T) {
	payload := `<response command="step_into" transaction_id="9" status="break" reason="ok">` +
		`<xdebug:message filename="file:///a.php" lineno="12"/>` +
		`</response>`
	root, err := decodeXML(payload)
	if err != nil {
		t.Fatalf("decodeXML: %v", err)
	}
	resp := parseResponse(root)
	if resp.Status != dbgp.StatusBreak {
		t.Errorf("status = %q, want break", resp.Status)
	}
	if resp.Location == nil || resp.Location.Filename != "file:///a.php" || resp.Location.Lineno != 12 {
		t.Fatalf("unexpected location: %+v", resp.Location)
	}
}
