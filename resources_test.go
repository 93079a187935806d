package apkparser

import (
	"encoding/binary"
	"testing"
)

func buildTypeSpecChunk(typeID uint8, flags []uint32) []byte {
	headerLen := uint16(16)
	chunkLen := uint32(headerLen) + 4*uint32(len(flags))

	buf := make([]byte, chunkLen)
	binary.LittleEndian.PutUint16(buf[0:2], chunkTableTypeSpec)
	binary.LittleEndian.PutUint16(buf[2:4], headerLen)
	binary.LittleEndian.PutUint32(buf[4:8], chunkLen)
	buf[8] = typeID
	buf[9] = 0
	binary.LittleEndian.PutUint16(buf[10:12], 0)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(flags)))

	for i, f := range flags {
		binary.LittleEndian.PutUint32(buf[16+4*i:20+4*i], f)
	}
	return buf
}

func TestTypeSpecAccessors(t *testing.T) {
	flags := make([]uint32, 1541)
	flags[0] = 0x40000004
	flags[1540] = 6

	buf := buildTypeSpecChunk(4, flags)
	if got, want := binary.LittleEndian.Uint32(buf[4:8]), uint32(6180); got != want {
		t.Fatalf("constructed chunk_size = %d, want %d", got, want)
	}

	ts, err := parseTypeSpec(buf, 16)
	if err != nil {
		t.Fatalf("parseTypeSpec error: %v", err)
	}

	if got := ts.ID(); got != 4 {
		t.Fatalf("ID() = %d, want 4", got)
	}
	if got := ts.Amount(); got != 1541 {
		t.Fatalf("Amount() = %d, want 1541", got)
	}

	if got, err := ts.Flag(0); err != nil || got != 0x40000004 {
		t.Fatalf("Flag(0) = (%d, %v), want (0x40000004, nil)", got, err)
	}
	if got, err := ts.Flag(25); err != nil || got != 0 {
		t.Fatalf("Flag(25) = (%d, %v), want (0, nil)", got, err)
	}
	if got, err := ts.Flag(1540); err != nil || got != 6 {
		t.Fatalf("Flag(1540) = (%d, %v), want (6, nil)", got, err)
	}
	if _, err := ts.Flag(1541); err == nil {
		t.Fatalf("Flag(1541) expected an out-of-range error")
	} else if kind, ok := ErrorKind(err); !ok || kind != KindIndexOutOfRange {
		t.Fatalf("Flag(1541) error kind = %v, want KindIndexOutOfRange", kind)
	}
}

func TestResourceIDPackageNormalization(t *testing.T) {
	if got := packageOf(0x00010002); got != 1 {
		t.Fatalf("packageOf(0x00010002) = %d, want 1", got)
	}
	if got := packageOf(0x7f010002); got != 0x7f {
		t.Fatalf("packageOf(0x7f010002) = %d, want 0x7f", got)
	}
}
