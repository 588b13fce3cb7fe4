package dap

import (
	"github.com/dbgp-mcp/dbgp-mcp/pkg/dbgp"
)

// parseInit builds an InitRecord from the root <init> element.
func parseInit(root *dbgp.Element) *dbgp.InitRecord {
	rec := &dbgp.InitRecord{
		AppID:           root.Attr("appid"),
		IDEKey:          root.Attr("idekey"),
		Session:         root.Attr("session"),
		Thread:          root.Attr("thread"),
		Language:        root.Attr("language"),
		ProtocolVersion: root.Attr("protocol_version"),
		FileURI:         root.Attr("fileuri"),
	}
	if eng := root.Child("engine"); eng != nil {
		rec.Engine = &dbgp.EngineInfo{
			Name:    eng.Attr("name"),
			Version: eng.Text,
		}
	}
	return rec
}

// parseResponse builds a Response from the root <response> element. Missing
// fields produce zero values, never errors: this is a total function on
// whatever the engine sent, per spec §4.3.
func parseResponse(root *dbgp.Element) *dbgp.Response {
	resp := &dbgp.Response{
		Command:       root.Attr("command"),
		TransactionID: atoi(root.Attr("transaction_id")),
		Root:          root,
	}
	if s := root.Attr("status"); s != "" {
		resp.Status = dbgp.Status(s)
	}
	if r := root.Attr("reason"); r != "" {
		resp.Reason = dbgp.Reason(r)
	}

	if errEl := root.Child("error"); errEl != nil {
		msg := ""
		if m := errEl.Child("message"); m != nil {
			msg = m.Text
		}
		resp.Error = &dbgp.EngineError{
			Code:    atoi(errEl.Attr("code")),
			Message: msg,
		}
	}

	switch root.Attr("success") {
	case "0":
		resp.Success = false
	case "1":
		resp.Success = true
	default:
		resp.Success = resp.Error == nil
	}

	if msgEl := firstNonNil(root.Child("message"), root.Child("xdebug:message")); msgEl != nil {
		resp.Location = &dbgp.Location{
			Filename:  msgEl.Attr("filename"),
			Lineno:    atoi(msgEl.Attr("lineno")),
			Exception: msgEl.Attr("exception"),
		}
	}

	return resp
}

func firstNonNil(els ...*dbgp.Element) *dbgp.Element {
	for _, e := range els {
		if e != nil {
			return e
		}
	}
	return nil
}

// parseStackFrames decodes every <stack> child of a stack_get response.
func parseStackFrames(root *dbgp.Element) []dbgp.StackFrame {
	var frames []dbgp.StackFrame
	for _, el := range root.ChildrenNamed("stack") {
		frames = append(frames, dbgp.StackFrame{
			Level:    atoi(el.Attr("level")),
			Type:     dbgp.StackFrameType(el.Attr("type")),
			Filename: el.Attr("filename"),
			Lineno:   atoi(el.Attr("lineno")),
			Where:    el.Attr("where"),
			CmdBegin: el.Attr("cmdbegin"),
			CmdEnd:   el.Attr("cmdend"),
		})
	}
	return frames
}

// parseContexts decodes every <context> child of a context_names response.
func parseContexts(root *dbgp.Element) []dbgp.Context {
	var ctxs []dbgp.Context
	for _, el := range root.ChildrenNamed("context") {
		ctxs = append(ctxs, dbgp.Context{
			ID:   atoi(el.Attr("id")),
			Name: el.Attr("name"),
		})
	}
	return ctxs
}

// parseProperty recursively decodes one <property> element and its children.
func parseProperty(el *dbgp.Element) *dbgp.Property {
	if el == nil {
		return nil
	}
	value, _ := decodeText(el)
	p := &dbgp.Property{
		Name:        el.Attr("name"),
		Fullname:    el.Attr("fullname"),
		Type:        el.Attr("type"),
		ClassName:   el.Attr("classname"),
		Facet:       el.Attr("facet"),
		Constant:    atob(el.Attr("constant")),
		HasChildren: atob(el.Attr("children")),
		NumChildren: atoi(el.Attr("numchildren")),
		Size:        atoi(el.Attr("size")),
		Page:        atoi(el.Attr("page")),
		PageSize:    atoi(el.Attr("pagesize")),
		Address:     el.Attr("address"),
		Key:         el.Attr("key"),
		Encoding:    el.Attr("encoding"),
		Value:       value,
	}
	for _, child := range el.ChildrenNamed("property") {
		p.Children = append(p.Children, parseProperty(child))
	}
	return p
}

// parseProperties decodes every top-level <property> child of a response
// (context_get, property_get with children, eval).
func parseProperties(root *dbgp.Element) []*dbgp.Property {
	var props []*dbgp.Property
	for _, el := range root.ChildrenNamed("property") {
		props = append(props, parseProperty(el))
	}
	return props
}

// parseBreakpoints decodes every <breakpoint> child of a breakpoint_list
// response.
func parseBreakpoints(root *dbgp.Element) []dbgp.Breakpoint {
	var bps []dbgp.Breakpoint
	for _, el := range root.ChildrenNamed("breakpoint") {
		bps = append(bps, dbgp.Breakpoint{
			ID:           el.Attr("id"),
			Type:         dbgp.BreakpointType(el.Attr("type")),
			State:        dbgp.BreakpointState(el.Attr("state")),
			Resolved:     atob(el.Attr("resolved")),
			Filename:     el.Attr("filename"),
			Lineno:       atoi(el.Attr("lineno")),
			Function:     el.Attr("function"),
			Exception:    el.Attr("exception"),
			Expression:   el.Attr("expression"),
			HitCount:     atoi(el.Attr("hit_count")),
			HitValue:     atoi(el.Attr("hit_value")),
			HitCondition: dbgp.HitCondition(el.Attr("hit_condition")),
		})
	}
	return bps
}

// breakpointSetResult is the {id, resolved} pair returned by breakpoint_set.
type breakpointSetResult struct {
	ID       string
	Resolved bool
}

func parseBreakpointSetResult(root *dbgp.Element) breakpointSetResult {
	if bp := root.Child("breakpoint"); bp != nil {
		return breakpointSetResult{ID: bp.Attr("id"), Resolved: atob(bp.Attr("resolved"))}
	}
	return breakpointSetResult{ID: root.Attr("id"), Resolved: atob(root.Attr("resolved"))}
}

// parseStream decodes a <stream> root element.
func parseStream(root *dbgp.Element) *dbgp.Stream {
	content, _ := decodeText(root)
	return &dbgp.Stream{
		Type:    dbgp.StreamType(root.Attr("type")),
		Content: content,
	}
}
