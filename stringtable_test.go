package apkparser

import (
	"bytes"
	"testing"
	"unicode/utf8"
)

func TestStringTableGetBounds(t *testing.T) {
	want := []string{"alpha", "beta", "gamma"}

	for _, utf8Mode := range []bool{true, false} {
		chunk := encodeStringTable(want, utf8Mode)
		st, err := parseStringTableWithChunk(bytes.NewReader(chunk))
		if err != nil {
			t.Fatalf("utf8=%v: parseStringTableWithChunk error: %v", utf8Mode, err)
		}

		for i := range want {
			got, err := st.get(uint32(i))
			if err != nil {
				t.Fatalf("utf8=%v: get(%d) error: %v", utf8Mode, i, err)
			}
			if got != want[i] {
				t.Fatalf("utf8=%v: get(%d) = %q, want %q", utf8Mode, i, got, want[i])
			}
			if utf8Mode && !utf8.ValidString(got) {
				t.Fatalf("utf8=%v: get(%d) = %q is not valid UTF-8", utf8Mode, i, got)
			}
		}

		if _, err := st.get(uint32(len(want))); err == nil {
			t.Fatalf("utf8=%v: get(%d) (one past the last string) expected an error", utf8Mode, len(want))
		}
	}
}

func TestStringTableGetIsCached(t *testing.T) {
	chunk := encodeStringTable([]string{"once"}, true)
	st, err := parseStringTableWithChunk(bytes.NewReader(chunk))
	if err != nil {
		t.Fatalf("parseStringTableWithChunk error: %v", err)
	}

	first, err := st.get(0)
	if err != nil {
		t.Fatalf("get(0) error: %v", err)
	}
	if cached, ok := st.cache[0]; !ok || cached != first {
		t.Fatalf("get(0) did not store %q in the string cache", first)
	}
	second, err := st.get(0)
	if err != nil {
		t.Fatalf("get(0) (cached) error: %v", err)
	}
	if first != second {
		t.Fatalf("get(0) returned %q then %q, want identical results", first, second)
	}
}

func TestStringTableEmptyPool(t *testing.T) {
	chunk := encodeStringTable(nil, true)
	st, err := parseStringTableWithChunk(bytes.NewReader(chunk))
	if err != nil {
		t.Fatalf("parseStringTableWithChunk error: %v", err)
	}
	if _, err := st.get(0); err == nil {
		t.Fatalf("get(0) on an empty string pool expected an error")
	}
}
