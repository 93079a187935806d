package apkparser

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

func TestFrameworkResourcesParse(t *testing.T) {
	table, err := ParseResourceTable(bytes.NewReader(FrameworkResources()))
	if err != nil {
		t.Fatalf("ParseResourceTable(FrameworkResources()) error: %v", err)
	}

	lib, ok := table.Package(1)
	if !ok {
		t.Fatalf("expected package id 1 (android) in the embedded framework table")
	}
	if lib.name != "android" {
		t.Fatalf("package 1 name = %q, want %q", lib.name, "android")
	}

	// Standalone, package 1 is this table's own main package, so no
	// namespace prefix is added and the "attr" type is elided.
	got, err := table.resolveReference(0x01010000, "@")
	if err != nil {
		t.Fatalf("resolveReference error: %v", err)
	}
	if want := "@label"; got != want {
		t.Fatalf("resolveReference(0x01010000) = %q, want %q", got, want)
	}
}

func TestNewDecoderMergesFramework(t *testing.T) {
	// A resources.arsc holding one empty application package (id 0x7f).
	name := make([]byte, 256)
	for i, u := range utf16.Encode([]rune("com.example.app")) {
		binary.LittleEndian.PutUint16(name[2*i:], u)
	}
	pkg := newChunkWriter(chunkTablePackage)
	pkg.writeHeader(uint32(0x7f), name, [5]uint32{})
	arsc := newChunkWriter(chunkTable)
	arsc.writeHeader(uint32(1)) // package count
	arsc.body.Write(pkg.Bytes())

	dec, err := NewDecoder(arsc.Bytes())
	if err != nil {
		t.Fatalf("NewDecoder error: %v", err)
	}
	app := dec.Table()

	if _, ok := app.Package(0x7f); !ok {
		t.Fatalf("expected the app's own package to survive the merge")
	}

	// Merged in as a non-main package, so android: references now carry
	// the package namespace prefix.
	got, err := app.resolveReference(0x01010000, "@")
	if err != nil {
		t.Fatalf("resolveReference error: %v", err)
	}
	if want := "@android:label"; got != want {
		t.Fatalf("resolveReference(0x01010000) after merge = %q, want %q", got, want)
	}
}
