package apkparser

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"
)

// maxElementDepth bounds the XML element stack (spec section 5) to
// reject pathologically nested compiled XML rather than recursing
// without limit.
const maxElementDepth = 256

// resAttrWireSize is sizeof(ResAttr) on the wire: two u32 indices, a
// raw value index, and an 8-byte ResValue.
const resAttrWireSize = 4 + 4 + 4 + 8

// xmlnsDecl is one prefix->uri binding rendered as an xmlns attribute
// on the element that introduced it (spec section 4.F).
type xmlnsDecl struct {
	prefix, uri string
}

type renderedAttr struct {
	name  string
	value string
}

// xmlNode is one element of the reconstructed tree (spec component F).
type xmlNode struct {
	tag        string
	xmlnsDecls []xmlnsDecl
	attrs      []renderedAttr
	children   []*xmlNode
	text       string
}

type nsBinding struct {
	prefix, uri string
}

// textXMLState drives the chunk stream into an element tree, mirroring
// binxml.go's chunk dispatch loop but resolving attribute names/values
// against a ResourceTable per spec section 4.F instead of emitting an
// encoding/xml token stream.
type textXMLState struct {
	strings     stringTable
	resourceIds []uint32
	res         *ResourceTable
	logf        func(format string, args ...interface{})

	nsStack     []nsBinding
	pendingDecl []xmlnsDecl

	stack []*xmlNode
	root  *xmlNode
}

func (st *textXMLState) warnf(format string, args ...interface{}) {
	if st.logf != nil {
		st.logf(format, args...)
	}
}

// RenderXML decodes a compiled binary XML file and renders it as
// indented textual XML (spec section 4.F's "Output rendering"). The
// resource table is optional; without it, references render in their
// unresolved "@id/0x.." / "?id/0x.." form.
func RenderXML(r io.Reader, resources *ResourceTable) (string, error) {
	return RenderXMLWithLogf(r, resources, nil)
}

// RenderXMLWithLogf is RenderXML with an optional diagnostic hook:
// logf, if non-nil, is called whenever an attribute's reference/flags
// resolution fails and the value degrades to its raw form (spec
// section 7's "degrade... and log a warning" rule).
func RenderXMLWithLogf(r io.Reader, resources *ResourceTable, logf func(format string, args ...interface{})) (string, error) {
	st := &textXMLState{res: resources, logf: logf}

	_, _, totalLen, err := parseChunkHeader(r)
	if err != nil {
		return "", newErr(KindBadChunkHeader, "RenderXML", err)
	}

	totalLen -= chunkHeaderSize

	var length uint32
	for i := uint32(0); i < totalLen; i += length {
		var chunkID uint16
		chunkID, _, length, err = parseChunkHeader(r)
		if err != nil {
			return "", newErr(KindBadChunkHeader, "RenderXML", err)
		}

		lm := &io.LimitedReader{R: r, N: int64(length) - 2*4}

		switch chunkID {
		case chunkStringTable:
			st.strings, err = parseStringTable(lm)
		case chunkResourceIds:
			err = st.parseResourceIds(lm)
		default:
			if (chunkID & chunkMaskXml) == 0 {
				return "", newErr(KindUnsupportedChunk, "RenderXML", fmt.Errorf("unknown chunk id 0x%x", chunkID))
			}
			if _, err = io.CopyN(ioutil.Discard, lm, 2*4); err != nil { // line, comment
				break
			}
			switch chunkID {
			case chunkXmlNsStart:
				err = st.nsStart(lm)
			case chunkXmlNsEnd:
				err = st.nsEnd(lm)
			case chunkXmlTagStart:
				err = st.tagStart(lm)
			case chunkXmlTagEnd:
				err = st.tagEnd(lm)
			case chunkXmlText:
				err = st.text(lm)
			default:
				// Unknown XML chunk kind: skip its body and continue.
				_, err = io.Copy(ioutil.Discard, lm)
			}
		}

		if err != nil {
			return "", err
		}
	}

	if st.root == nil {
		return "", newErr(KindUnbalancedDocument, "RenderXML", fmt.Errorf("no root element"))
	}
	if len(st.stack) != 0 {
		return "", newErr(KindUnbalancedDocument, "RenderXML", fmt.Errorf("%d unclosed elements", len(st.stack)))
	}

	var out strings.Builder
	out.WriteString(`<?xml version="1.0" encoding="utf-8" standalone="no"?>` + "\n")
	renderNode(&out, st.root, 0)
	return out.String(), nil
}

func (st *textXMLState) parseResourceIds(r *io.LimitedReader) error {
	if (r.N % 4) != 0 {
		return newErr(KindBadChunkHeader, "parseResourceIds", fmt.Errorf("size not a multiple of 4"))
	}
	count := uint32(r.N / 4)
	for i := uint32(0); i < count; i++ {
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return newErr(KindTruncated, "parseResourceIds", err)
		}
		st.resourceIds = append(st.resourceIds, id)
	}
	return nil
}

func (st *textXMLState) nsStart(r *io.LimitedReader) error {
	var prefixIdx, uriIdx uint32
	if err := binary.Read(r, binary.LittleEndian, &prefixIdx); err != nil {
		return newErr(KindTruncated, "nsStart", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &uriIdx); err != nil {
		return newErr(KindTruncated, "nsStart", err)
	}
	prefix, err := st.strings.get(prefixIdx)
	if err != nil {
		return newErr(KindIndexOutOfRange, "nsStart", err)
	}
	uri, err := st.strings.get(uriIdx)
	if err != nil {
		return newErr(KindIndexOutOfRange, "nsStart", err)
	}
	st.nsStack = append(st.nsStack, nsBinding{prefix: prefix, uri: uri})
	st.pendingDecl = append(st.pendingDecl, xmlnsDecl{prefix: prefix, uri: uri})
	return nil
}

func (st *textXMLState) nsEnd(r *io.LimitedReader) error {
	if _, err := io.CopyN(ioutil.Discard, r, 2*4); err != nil {
		return newErr(KindTruncated, "nsEnd", err)
	}
	if len(st.nsStack) > 0 {
		st.nsStack = st.nsStack[:len(st.nsStack)-1]
	}
	return nil
}

func (st *textXMLState) prefixFor(uri string) string {
	if uri == "" {
		return ""
	}
	for i := len(st.nsStack) - 1; i >= 0; i-- {
		if st.nsStack[i].uri == uri {
			return st.nsStack[i].prefix
		}
	}
	return ""
}

func (st *textXMLState) tagStart(r *io.LimitedReader) error {
	var namespaceIdx, nameIdx uint32
	var attrStart, attrSize, attrCount uint16

	for _, p := range []*uint32{&namespaceIdx, &nameIdx} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return newErr(KindTruncated, "tagStart", err)
		}
	}
	for _, p := range []*uint16{&attrStart, &attrSize, &attrCount} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return newErr(KindTruncated, "tagStart", err)
		}
	}
	if _, err := io.CopyN(ioutil.Discard, r, 2*3); err != nil { // idIndex, classIndex, styleIndex
		return newErr(KindTruncated, "tagStart", err)
	}

	namespace, err := st.strings.get(namespaceIdx)
	if err != nil {
		return newErr(KindIndexOutOfRange, "tagStart", err)
	}
	name, err := st.strings.get(nameIdx)
	if err != nil {
		return newErr(KindIndexOutOfRange, "tagStart", err)
	}

	tag := name
	if prefix := st.prefixFor(namespace); prefix != "" {
		tag = prefix + ":" + name
	}

	node := &xmlNode{tag: tag, xmlnsDecls: st.pendingDecl}
	st.pendingDecl = nil

	var attr ResAttr
	for i := uint16(0); i < attrCount; i++ {
		if err := binary.Read(r, binary.LittleEndian, &attr); err != nil {
			return newErr(KindTruncated, "tagStart", err)
		}
		if extra := int64(attrSize) - resAttrWireSize; extra > 0 {
			io.CopyN(ioutil.Discard, r, extra)
		}

		ra, err := st.resolveAttr(attr)
		if err != nil {
			return err
		}
		node.attrs = append(node.attrs, ra)
	}

	if len(st.stack) >= maxElementDepth {
		return newErr(KindUnbalancedDocument, "tagStart", fmt.Errorf("element nesting exceeds %d", maxElementDepth))
	}

	if len(st.stack) > 0 {
		parent := st.stack[len(st.stack)-1]
		parent.children = append(parent.children, node)
	}
	st.stack = append(st.stack, node)
	return nil
}

func (st *textXMLState) resolveAttr(attr ResAttr) (renderedAttr, error) {
	name, err := st.strings.get(attr.NameIdx)
	if err != nil {
		return renderedAttr{}, newErr(KindIndexOutOfRange, "resolveAttr", err)
	}

	if st.res != nil && attr.NameIdx < uint32(len(st.resourceIds)) {
		if specName, ok := resourceEntryName(st.res, st.resourceIds[attr.NameIdx]); ok {
			name = specName
		}
	}

	value, err := st.resolveAttrValue(attr)
	if err != nil {
		return renderedAttr{}, err
	}

	return renderedAttr{name: name, value: value}, nil
}

func (st *textXMLState) resolveAttrValue(attr ResAttr) (string, error) {
	const noValue = 0xFFFFFFFF
	if attr.RawValueIdx != noValue {
		s, err := st.strings.get(attr.RawValueIdx)
		if err != nil {
			return "", newErr(KindIndexOutOfRange, "resolveAttrValue", err)
		}
		return s, nil
	}

	v, err := DecodeValue(attr.Res.Type, attr.Res.Data)
	if err != nil {
		return "", err
	}

	switch v.Kind {
	case ValueReferenceId:
		if st.res == nil {
			return v.String(), nil
		}
		s, err := st.res.resolveReference(v.Data, "@")
		if err != nil {
			st.warnf("could not resolve reference 0x%08x: %v", v.Data, err)
			return v.String(), nil
		}
		return s, nil
	case ValueAttributeReferenceId:
		if st.res == nil {
			return v.String(), nil
		}
		s, err := st.res.resolveReference(v.Data, "?")
		if err != nil {
			st.warnf("could not resolve attribute reference 0x%08x: %v", v.Data, err)
			return v.String(), nil
		}
		return s, nil
	case ValueFlags:
		if st.res != nil {
			if s, ok := st.res.resolveFlags(v.Data, attr.NameIdx, st.resourceIds); ok {
				return s, nil
			}
			st.warnf("could not resolve flags 0x%08x", v.Data)
		}
		return strconv.FormatInt(int64(int32(v.Data)), 10), nil
	default:
		return v.String(), nil
	}
}

// resourceEntryName returns the bare key name for a resource id (e.g.
// "label", not "@string/label"), used to recover an attribute's
// canonical name when the compiled file only carries its resource id.
func resourceEntryName(res *ResourceTable, id uint32) (string, bool) {
	lib, ok := res.Package(packageOf(id))
	if !ok {
		return "", false
	}
	entry, ok := lib.entry(id)
	if !ok {
		return "", false
	}
	name, err := lib.entriesString(entry.Key())
	if err != nil {
		return "", false
	}
	return name, true
}

func (st *textXMLState) tagEnd(r *io.LimitedReader) error {
	if _, err := io.CopyN(ioutil.Discard, r, 2*4); err != nil {
		return newErr(KindTruncated, "tagEnd", err)
	}
	if len(st.stack) == 0 {
		return newErr(KindUnbalancedDocument, "tagEnd", fmt.Errorf("end tag with no matching start"))
	}
	node := st.stack[len(st.stack)-1]
	st.stack = st.stack[:len(st.stack)-1]
	if len(st.stack) == 0 {
		st.root = node
	}
	return nil
}

func (st *textXMLState) text(r *io.LimitedReader) error {
	var idx uint32
	if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
		return newErr(KindTruncated, "text", err)
	}
	s, err := st.strings.get(idx)
	if err != nil {
		return newErr(KindIndexOutOfRange, "text", err)
	}
	if _, err := io.CopyN(ioutil.Discard, r, 2*4); err != nil {
		return newErr(KindTruncated, "text", err)
	}
	if len(st.stack) > 0 && strings.TrimSpace(s) != "" {
		st.stack[len(st.stack)-1].text += s
	}
	return nil
}

func renderNode(out *strings.Builder, n *xmlNode, depth int) {
	indent := strings.Repeat("  ", depth)
	out.WriteString(indent)
	out.WriteString("<" + n.tag)
	for _, d := range n.xmlnsDecls {
		out.WriteString(fmt.Sprintf(` xmlns:%s="%s"`, d.prefix, escapeXML(d.uri, true)))
	}
	for _, a := range n.attrs {
		out.WriteString(fmt.Sprintf(` %s="%s"`, a.name, escapeXML(a.value, true)))
	}
	out.WriteString(">")

	if len(n.children) == 0 {
		out.WriteString(escapeXML(n.text, false))
		out.WriteString("</" + n.tag + ">")
		return
	}

	for _, c := range n.children {
		out.WriteString("\n")
		renderNode(out, c, depth+1)
	}
	out.WriteString("\n" + indent)
	out.WriteString("</" + n.tag + ">")
}

var xmlTextReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
var xmlAttrReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeXML(s string, attr bool) string {
	if attr {
		return xmlAttrReplacer.Replace(s)
	}
	return xmlTextReplacer.Replace(s)
}
