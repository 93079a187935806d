package apkparser

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

// buildTagStartChunk hand-assembles a chunkXmlTagStart chunk with no
// attributes, since writer.go only exposes encoders for the namespace
// and tag-end chunk kinds.
func buildTagStartChunk(namespaceIdx, nameIdx uint32) []byte {
	var buf bytes.Buffer
	const headerLen = 36
	binary.Write(&buf, binary.LittleEndian, uint16(chunkXmlTagStart))
	binary.Write(&buf, binary.LittleEndian, uint16(headerLen))
	binary.Write(&buf, binary.LittleEndian, uint32(headerLen)) // no attrs: chunk_size == header_size
	binary.Write(&buf, binary.LittleEndian, uint32(0))         // line
	binary.Write(&buf, binary.LittleEndian, uint32(0xFFFFFFFF)) // comment
	binary.Write(&buf, binary.LittleEndian, namespaceIdx)
	binary.Write(&buf, binary.LittleEndian, nameIdx)
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // attrStart
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // attrSize
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // attrCount
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // idIndex
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // classIndex
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // styleIndex
	return buf.Bytes()
}

func wrapXmlDocument(chunks ...[]byte) []byte {
	var body bytes.Buffer
	for _, c := range chunks {
		body.Write(c)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(chunkAxmlFile))
	binary.Write(&buf, binary.LittleEndian, uint16(chunkHeaderSize))
	binary.Write(&buf, binary.LittleEndian, uint32(chunkHeaderSize+body.Len()))
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func TestRenderXMLMinimalDocument(t *testing.T) {
	const noValue = 0xFFFFFFFF

	doc := wrapXmlDocument(
		encodeStringTable([]string{"start_tag"}, true),
		buildTagStartChunk(noValue, 0),
		encodeXmlTagEnd(noValue, 0),
	)

	got, err := RenderXML(bytes.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("RenderXML error: %v", err)
	}

	want := "<?xml version=\"1.0\" encoding=\"utf-8\" standalone=\"no\"?>\n<start_tag></start_tag>"
	if got != want {
		t.Fatalf("RenderXML = %q, want %q", got, want)
	}
}

func TestRenderXMLUnbalancedDocument(t *testing.T) {
	const noValue = 0xFFFFFFFF

	doc := wrapXmlDocument(
		encodeStringTable([]string{"start_tag"}, true),
		buildTagStartChunk(noValue, 0),
	)

	if _, err := RenderXML(bytes.NewReader(doc), nil); err == nil {
		t.Fatalf("expected an error for a document missing its closing tag")
	} else if kind, ok := ErrorKind(err); !ok || kind != KindUnbalancedDocument {
		t.Fatalf("error kind = %v, want KindUnbalancedDocument", kind)
	}
}

func TestRenderXMLNestedElements(t *testing.T) {
	const noValue = 0xFFFFFFFF

	doc := wrapXmlDocument(
		encodeStringTable([]string{"root", "child"}, true),
		buildTagStartChunk(noValue, 0),
		buildTagStartChunk(noValue, 1),
		encodeXmlTagEnd(noValue, 1),
		encodeXmlTagEnd(noValue, 0),
	)

	got, err := RenderXML(bytes.NewReader(doc), nil)
	if err != nil {
		t.Fatalf("RenderXML error: %v", err)
	}

	want := "<?xml version=\"1.0\" encoding=\"utf-8\" standalone=\"no\"?>\n<root>\n  <child></child>\n</root>"
	if got != want {
		t.Fatalf("RenderXML = %q, want %q", got, want)
	}
	if !strings.Contains(got, "<child>") {
		t.Fatalf("expected rendered output to contain the child element")
	}
}
