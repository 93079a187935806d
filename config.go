package apkparser

import "fmt"

// Region is the two-letter (or empty) region code packed into a
// Configuration's locale fields. Grounded on original_source's
// table_type/configuration.rs Region type: each letter is packed as a
// byte either holding the raw ASCII character, or - for the 3-letter
// ISO 3166-2 form rarely seen in compiled resources - a 5-bit packed
// value with the top bit set. This port only implements the plain
// 2-letter ASCII form, which is the only one spec section 4.C
// describes and tests against.
type Region struct {
	a, b byte
}

// NewRegion builds a Region from a two-character ISO 3166-1 code, or
// the empty string for "any region". Matches
// configuration.rs's Region::from.
func NewRegion(s string) (Region, error) {
	if s == "" {
		return Region{}, nil
	}
	if len(s) != 2 {
		return Region{}, newErr(KindMalformedConfig, "NewRegion", fmt.Errorf("region code %q is not 2 characters", s))
	}
	return Region{a: s[0], b: s[1]}, nil
}

// String renders the region the way spec section 4.C's Region codec
// test expects: "any" when both bytes are zero, else the two ASCII
// characters verbatim.
func (r Region) String() string {
	if r.a == 0 && r.b == 0 {
		return "any"
	}
	return string([]byte{r.a, r.b})
}

// Configuration is the per-configuration qualifier record that
// precedes every table type's entry offset array (spec section 4.C).
// Field layout follows configuration.rs's ConfigurationWrapper, which
// itself mirrors frameworks/base's ResTable_config, truncated to the
// fields spec.md actually surfaces: size-prefixed record, mcc/mnc,
// packed 2-byte language/region, orientation/touchscreen/density,
// keyboard/navigation/input flags, screen size, version, and the
// screenConfig/screenSizeDp extension fields present in newer configs.
type Configuration struct {
	Size uint32

	Mcc uint16
	Mnc uint16

	Language Region
	Region   Region

	Orientation  uint8
	Touchscreen  uint8
	Density      uint16

	Keyboard   uint8
	Navigation uint8
	InputFlags uint8

	ScreenWidth  uint16
	ScreenHeight uint16

	SdkVersion   uint16
	MinorVersion uint16

	ScreenLayout   uint8
	UiMode         uint8
	SmallestScreenWidthDp uint16

	ScreenWidthDp  uint16
	ScreenHeightDp uint16
}

// parseConfiguration reads a Configuration starting at cur's current
// position. Like the upstream format, the record is self-describing:
// Size gives the total on-wire length (which may exceed what this
// struct models, for configs newer than what spec.md covers), and the
// cursor is always advanced exactly Size bytes so the caller can keep
// reading the entry offset array that follows regardless of which
// fields this parser understands.
func parseConfiguration(cur *byteCursor) (Configuration, error) {
	start := cur.pos

	size, err := cur.u32()
	if err != nil {
		return Configuration{}, newErr(KindMalformedConfig, "parseConfiguration", err)
	}
	if size < 4 {
		return Configuration{}, newErr(KindMalformedConfig, "parseConfiguration", fmt.Errorf("size %d too small", size))
	}

	var c Configuration
	c.Size = size

	read := func(f func() error) {
		if err != nil {
			return
		}
		err = f()
	}

	avail := func(n int) bool { return cur.pos-start+n <= int(size) }

	if avail(2) {
		read(func() (e error) { c.Mcc, e = cur.u16(); return })
	}
	if avail(2) {
		read(func() (e error) { c.Mnc, e = cur.u16(); return })
	}
	if avail(1) {
		read(func() (e error) {
			b, e := cur.u8()
			c.Language = Region{a: b}
			return e
		})
	}
	if avail(1) {
		read(func() (e error) {
			b, e := cur.u8()
			c.Language.b = b
			return e
		})
	}
	if avail(1) {
		read(func() (e error) {
			b, e := cur.u8()
			c.Region = Region{a: b}
			return e
		})
	}
	if avail(1) {
		read(func() (e error) {
			b, e := cur.u8()
			c.Region.b = b
			return e
		})
	}
	if avail(1) {
		read(func() (e error) { c.Orientation, e = cur.u8(); return })
	}
	if avail(1) {
		read(func() (e error) { c.Touchscreen, e = cur.u8(); return })
	}
	if avail(2) {
		read(func() (e error) { c.Density, e = cur.u16(); return })
	}
	if avail(1) {
		read(func() (e error) { c.Keyboard, e = cur.u8(); return })
	}
	if avail(1) {
		read(func() (e error) { c.Navigation, e = cur.u8(); return })
	}
	if avail(1) {
		read(func() (e error) { c.InputFlags, e = cur.u8(); return })
	}
	if avail(1) {
		read(func() (e error) { _, e = cur.u8(); return }) // inputPad0
	}
	if avail(2) {
		read(func() (e error) { c.ScreenWidth, e = cur.u16(); return })
	}
	if avail(2) {
		read(func() (e error) { c.ScreenHeight, e = cur.u16(); return })
	}
	if avail(2) {
		read(func() (e error) { c.SdkVersion, e = cur.u16(); return })
	}
	if avail(2) {
		read(func() (e error) { c.MinorVersion, e = cur.u16(); return })
	}
	if avail(1) {
		read(func() (e error) { c.ScreenLayout, e = cur.u8(); return })
	}
	if avail(1) {
		read(func() (e error) { c.UiMode, e = cur.u8(); return })
	}
	if avail(2) {
		read(func() (e error) { c.SmallestScreenWidthDp, e = cur.u16(); return })
	}
	if avail(2) {
		read(func() (e error) { c.ScreenWidthDp, e = cur.u16(); return })
	}
	if avail(2) {
		read(func() (e error) { c.ScreenHeightDp, e = cur.u16(); return })
	}

	if err != nil {
		return Configuration{}, newErr(KindMalformedConfig, "parseConfiguration", err)
	}

	// Skip anything this struct doesn't model (locale script/variant,
	// round-screen bits, color mode, ...) plus any padding, so the
	// cursor lands exactly Size bytes past start regardless of which
	// newer fields were present.
	consumed := cur.pos - start
	if consumed > int(size) {
		return Configuration{}, newErr(KindMalformedConfig, "parseConfiguration", fmt.Errorf("consumed %d bytes, declared size %d", consumed, size))
	}
	if err := cur.skip(int(size) - consumed); err != nil {
		return Configuration{}, newErr(KindMalformedConfig, "parseConfiguration", err)
	}

	return c, nil
}

// LanguageString renders the two-letter language code, or "any" if unset.
func (c Configuration) LanguageString() string {
	return c.Language.String()
}

// RegionString renders the two-letter region code, or "any" if unset.
func (c Configuration) RegionString() string {
	return c.Region.String()
}
