package apkparser

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// chunkWriter accumulates a chunk body and wraps it with the common
// {id, header_size, chunk_size} envelope on Bytes(). Grounded on
// original_source's model/owned/mod.rs OwnedBuf::write_header: every
// owned chunk type there computes header_size/chunk_size the same way,
// which this type centralizes instead of repeating per writer.
type chunkWriter struct {
	id     uint16
	header bytes.Buffer
	body   bytes.Buffer
}

func newChunkWriter(id uint16) *chunkWriter {
	return &chunkWriter{id: id}
}

func (w *chunkWriter) writeHeader(order ...interface{}) {
	for _, v := range order {
		binary.Write(&w.header, binary.LittleEndian, v)
	}
}

func (w *chunkWriter) writeBody(order ...interface{}) {
	for _, v := range order {
		binary.Write(&w.body, binary.LittleEndian, v)
	}
}

func (w *chunkWriter) Bytes() []byte {
	headerSize := uint16(chunkHeaderSize + w.header.Len())
	chunkSize := uint32(headerSize) + uint32(w.body.Len())

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, w.id)
	binary.Write(&out, binary.LittleEndian, headerSize)
	binary.Write(&out, binary.LittleEndian, chunkSize)
	out.Write(w.header.Bytes())
	out.Write(w.body.Bytes())
	return out.Bytes()
}

// encodeStringTable writes a complete string pool chunk. utf8 selects
// the wire encoding (spec section 4.B); strings are written in order
// with no style block, matching the simple round-trip this module
// needs (there is no style span model here - consistent with spec.md's
// non-goals around rich text styling).
func encodeStringTable(strings []string, utf8 bool) []byte {
	offsets := make([]uint32, len(strings))
	var data bytes.Buffer

	for i, s := range strings {
		offsets[i] = uint32(data.Len())
		if utf8 {
			writeString8(&data, s)
		} else {
			writeString16(&data, s)
		}
	}
	// pad to 4-byte alignment, matching upstream string pool layout
	for data.Len()%4 != 0 {
		data.WriteByte(0)
	}

	flags := uint32(0)
	if utf8 {
		flags |= stringFlagUtf8
	}

	stringsStart := uint32(7*4 + 4*len(strings))

	w := newChunkWriter(chunkStringTable)
	w.writeHeader(
		uint32(len(strings)), // string count
		uint32(0),            // style count
		flags,
		stringsStart,
		uint32(0), // styles offset (unused, no styles)
	)
	for _, off := range offsets {
		binary.Write(&w.header, binary.LittleEndian, off)
	}
	w.body.Write(data.Bytes())

	return w.Bytes()
}

func writeString8(buf *bytes.Buffer, s string) {
	u16len := len(utf16.Encode([]rune(s)))
	writeString8Len(buf, u16len)
	writeString8Len(buf, len(s))
	buf.WriteString(s)
	buf.WriteByte(0)
}

func writeString8Len(buf *bytes.Buffer, n int) {
	if n > 0x7F {
		buf.WriteByte(byte(0x80 | (n >> 8)))
		buf.WriteByte(byte(n & 0xFF))
	} else {
		buf.WriteByte(byte(n))
	}
}

func writeString16(buf *bytes.Buffer, s string) {
	units := utf16.Encode([]rune(s))
	n := len(units)
	if n > 0x7FFF {
		binary.Write(buf, binary.LittleEndian, uint16(0x8000|(n>>16)))
		binary.Write(buf, binary.LittleEndian, uint16(n&0xFFFF))
	} else {
		binary.Write(buf, binary.LittleEndian, uint16(n))
	}
	for _, u := range units {
		binary.Write(buf, binary.LittleEndian, u)
	}
	binary.Write(buf, binary.LittleEndian, uint16(0))
}

// encodeSimpleEntry writes one non-complex ResTable_entry, matching
// original_source's owned/table_type/entry.rs SimpleEntry::to_vec.
func encodeSimpleEntry(keyIndex uint32, tag AttrType, data uint32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(8)) // header size
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // flags: simple
	binary.Write(&buf, binary.LittleEndian, keyIndex)
	binary.Write(&buf, binary.LittleEndian, uint16(8)) // ResValue.size
	buf.WriteByte(0)                                   // res0
	buf.WriteByte(byte(tag))
	binary.Write(&buf, binary.LittleEndian, data)
	return buf.Bytes()
}

// encodeComplexEntry writes one map/style ResTable_entry, matching
// entry.rs's ComplexEntry::to_vec, including its 0xFFFFFFFF
// sentinel for a childless complex entry.
func encodeComplexEntry(keyIndex, parentID uint32, children []entryChild) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(16)) // header size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // flags: complex
	binary.Write(&buf, binary.LittleEndian, keyIndex)
	binary.Write(&buf, binary.LittleEndian, parentID)

	if len(children) == 0 {
		binary.Write(&buf, binary.LittleEndian, uint32(noEntry))
	} else {
		binary.Write(&buf, binary.LittleEndian, uint32(len(children)))
	}

	for _, c := range children {
		binary.Write(&buf, binary.LittleEndian, c.id)
		binary.Write(&buf, binary.LittleEndian, uint16(8))
		buf.WriteByte(0)
		buf.WriteByte(byte(AttrTypeIntDec))
		binary.Write(&buf, binary.LittleEndian, c.value)
	}

	return buf.Bytes()
}

// encodeTypeSpec writes a TypeSpec chunk (flags array), the inverse of
// parseTypeSpec.
func encodeTypeSpec(id uint8, flags []uint32) []byte {
	w := newChunkWriter(chunkTableTypeSpec)
	w.writeHeader(id, uint8(0), uint16(0), uint32(len(flags)))
	for _, f := range flags {
		binary.Write(&w.body, binary.LittleEndian, f)
	}
	return w.Bytes()
}

// encodeConfiguration writes a Configuration record back to its wire
// form, inverse of parseConfiguration. Always emits the fixed 36-byte
// layout this package understands; callers needing the exact original
// byte-for-byte size should keep the source bytes instead of
// round-tripping through Configuration.
func encodeConfiguration(c Configuration) []byte {
	var buf bytes.Buffer
	const size = 36
	binary.Write(&buf, binary.LittleEndian, uint32(size))
	binary.Write(&buf, binary.LittleEndian, c.Mcc)
	binary.Write(&buf, binary.LittleEndian, c.Mnc)
	buf.WriteByte(c.Language.a)
	buf.WriteByte(c.Language.b)
	buf.WriteByte(c.Region.a)
	buf.WriteByte(c.Region.b)
	buf.WriteByte(c.Orientation)
	buf.WriteByte(c.Touchscreen)
	binary.Write(&buf, binary.LittleEndian, c.Density)
	buf.WriteByte(c.Keyboard)
	buf.WriteByte(c.Navigation)
	buf.WriteByte(c.InputFlags)
	buf.WriteByte(0) // padding
	binary.Write(&buf, binary.LittleEndian, c.ScreenWidth)
	binary.Write(&buf, binary.LittleEndian, c.ScreenHeight)
	binary.Write(&buf, binary.LittleEndian, c.SdkVersion)
	binary.Write(&buf, binary.LittleEndian, c.MinorVersion)
	buf.WriteByte(c.ScreenLayout)
	buf.WriteByte(c.UiMode)
	binary.Write(&buf, binary.LittleEndian, c.SmallestScreenWidthDp)
	binary.Write(&buf, binary.LittleEndian, c.ScreenWidthDp)
	binary.Write(&buf, binary.LittleEndian, c.ScreenHeightDp)
	return buf.Bytes()
}

// encodeTableType writes a ResTable_type chunk from a configuration and
// its sparse entries (keyed by within-type index), inverse of
// parseTableType.
func encodeTableType(id uint8, cfg Configuration, entries map[uint32]Entry, entryCount uint32) []byte {
	cfgBytes := encodeConfiguration(cfg)

	var entryData bytes.Buffer
	offsets := make([]uint32, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		e, ok := entries[i]
		if !ok {
			offsets[i] = noEntry
			continue
		}
		offsets[i] = uint32(entryData.Len())
		if e.complex {
			entryData.Write(encodeComplexEntry(e.key, e.parentID, e.children))
		} else {
			entryData.Write(encodeSimpleEntry(e.key, e.value.Tag, e.value.Data))
		}
	}

	w := newChunkWriter(chunkTableType)
	w.writeHeader(id, uint8(0), uint16(0), entryCount)
	headerSoFar := chunkHeaderSize + w.header.Len() + 4 // +4 for entriesStart field itself
	entriesStart := uint32(headerSoFar + len(cfgBytes) + 4*len(offsets))
	binary.Write(&w.header, binary.LittleEndian, entriesStart)
	w.header.Write(cfgBytes)
	for _, off := range offsets {
		binary.Write(&w.body, binary.LittleEndian, off)
	}
	w.body.Write(entryData.Bytes())

	return w.Bytes()
}

// encodeXmlNamespaceStart and friends cover the binary XML chunk types
// (spec section 4.F/4.G): namespace start/end and tag end all share the
// same {line, comment} header followed by two string indices, mirroring
// binxml.go's parse side. There is no tag-start encoder.
func encodeXmlNamespaceStart(prefixIdx, uriIdx uint32) []byte {
	w := newChunkWriter(chunkXmlNsStart)
	w.writeHeader(uint32(0), uint32(0xFFFFFFFF)) // line, comment
	w.writeBody(prefixIdx, uriIdx)
	return w.Bytes()
}

func encodeXmlNamespaceEnd(prefixIdx, uriIdx uint32) []byte {
	w := newChunkWriter(chunkXmlNsEnd)
	w.writeHeader(uint32(0), uint32(0xFFFFFFFF))
	w.writeBody(prefixIdx, uriIdx)
	return w.Bytes()
}

func encodeXmlTagEnd(nsIdx, nameIdx uint32) []byte {
	w := newChunkWriter(chunkXmlTagEnd)
	w.writeHeader(uint32(0), uint32(0xFFFFFFFF))
	w.writeBody(nsIdx, nameIdx)
	return w.Bytes()
}
