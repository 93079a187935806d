package apkparser

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestStringTableRoundTrip(t *testing.T) {
	for _, utf8 := range []bool{true, false} {
		want := []string{"hello", "", "world", "éè"}
		chunk := encodeStringTable(want, utf8)

		st, err := parseStringTableWithChunk(bytes.NewReader(chunk))
		if err != nil {
			t.Fatalf("utf8=%v: parseStringTableWithChunk error: %v", utf8, err)
		}

		for i, s := range want {
			got, err := st.get(uint32(i))
			if err != nil {
				t.Fatalf("utf8=%v: get(%d) error: %v", utf8, i, err)
			}
			if got != s {
				t.Fatalf("utf8=%v: get(%d) = %q, want %q", utf8, i, got, s)
			}
		}
	}
}

func TestTypeSpecRoundTrip(t *testing.T) {
	flags := []uint32{0x40000004, 0, 6, 0xFFFF0000}
	chunk := encodeTypeSpec(7, flags)

	ts, err := parseTypeSpec(chunk, 16)
	if err != nil {
		t.Fatalf("parseTypeSpec error: %v", err)
	}
	if ts.ID() != 7 {
		t.Fatalf("ID() = %d, want 7", ts.ID())
	}
	for i, want := range flags {
		got, err := ts.Flag(uint32(i))
		if err != nil || got != want {
			t.Fatalf("Flag(%d) = (%d, %v), want (%d, nil)", i, got, err, want)
		}
	}
}

func TestConfigurationRoundTrip(t *testing.T) {
	c := Configuration{
		Size: 36,
		Mcc:  234, Mnc: 15,
		Language: Region{a: 'e', b: 'n'}, Region: Region{a: 'u', b: 's'},
		Orientation: 1, Touchscreen: 1, Density: 480,
		Keyboard: 2, Navigation: 1, InputFlags: 3,
		ScreenWidth: 1080, ScreenHeight: 1920,
		SdkVersion: 29, MinorVersion: 0,
		ScreenLayout: 2, UiMode: 1,
		SmallestScreenWidthDp: 360, ScreenWidthDp: 360, ScreenHeightDp: 640,
	}

	buf := encodeConfiguration(c)
	cur := at(buf, 0)
	got, err := parseConfiguration(cur)
	if err != nil {
		t.Fatalf("parseConfiguration error: %v", err)
	}

	if got != c {
		t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, c)
	}
}

func TestTableTypeRoundTrip(t *testing.T) {
	cfg := Configuration{Mcc: 310, Mnc: 260}
	entries := map[uint32]Entry{
		0: {key: 5, value: Value{Kind: ValueInteger, Tag: AttrTypeIntDec, Data: 42}},
		2: {key: 9, complex: true, parentID: 0, children: []entryChild{
			{id: 0x01010001, value: 7},
		}},
	}

	chunk := encodeTableType(3, cfg, entries, 4)
	headerLen := uint32(binary.LittleEndian.Uint16(chunk[2:4]))

	id, gotCfg, gotEntries, err := parseTableType(chunk, headerLen, uint32(len(chunk)))
	if err != nil {
		t.Fatalf("parseTableType error: %v", err)
	}
	if id != 3 {
		t.Fatalf("id = %d, want 3", id)
	}
	if gotCfg.Mcc != cfg.Mcc || gotCfg.Mnc != cfg.Mnc {
		t.Fatalf("cfg mismatch: got %+v, want %+v", gotCfg, cfg)
	}

	if len(gotEntries) != 2 {
		t.Fatalf("got %d entries, want 2 (index 1 and 3 are unset)", len(gotEntries))
	}

	e0, ok := gotEntries[0]
	if !ok || e0.Key() != 5 || e0.IsComplex() {
		t.Fatalf("entry 0 = %+v, want simple entry with key 5", e0)
	}
	v, ok := e0.Value()
	if !ok || v.Data != 42 {
		t.Fatalf("entry 0 value = %+v, want data 42", v)
	}

	e2, ok := gotEntries[2]
	if !ok || e2.Key() != 9 || !e2.IsComplex() {
		t.Fatalf("entry 2 = %+v, want complex entry with key 9", e2)
	}
	if len(e2.children) != 1 || e2.children[0].id != 0x01010001 || e2.children[0].value != 7 {
		t.Fatalf("entry 2 children = %+v, want one child {0x01010001, 7}", e2.children)
	}

	if _, ok := gotEntries[1]; ok {
		t.Fatalf("entry 1 should be absent (noEntry sentinel)")
	}
}
