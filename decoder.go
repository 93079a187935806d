package apkparser

import (
	"bytes"
	"fmt"
	"io"
	"math"
)

// Decoder is the package's top-level entry point for decoding a single
// resources.arsc image plus any number of binary XML files against it.
// It exists alongside the lower-level ParseResourceTable/RenderXML
// functions to give callers a single object to hold the parsed table
// across multiple XML files, which is the common case when unpacking
// a whole APK (spec section 6's external interface).
type Decoder struct {
	table *ResourceTable

	// Logf, if set, receives diagnostic messages (attribute references
	// or flags that fail to resolve and fall back to their raw form, and
	// entries that fail to decode during Export). Callers wire up their own logger
	// rather than this package picking one for them.
	Logf func(format string, args ...interface{})
}

// NewDecoder parses a resources.arsc image and returns a Decoder ready
// to render XML files against it. The bundled stand-in framework table
// (see FrameworkResources) is loaded first, so references into
// android:-namespaced resources resolve even though they are never
// defined in the application's own resources.arsc.
func NewDecoder(arsc []byte) (*Decoder, error) {
	fw, err := ParseResourceTable(bytes.NewReader(FrameworkResources()))
	if err != nil {
		return nil, newErr(KindMalformedConfig, "NewDecoder", fmt.Errorf("embedded framework table: %w", err))
	}

	table, err := ParseResourceTable(bytes.NewReader(arsc))
	if err != nil {
		return nil, err
	}

	for id, lib := range fw.packages {
		if _, exists := table.packages[id]; !exists {
			table.packages[id] = lib
		}
	}

	return &Decoder{table: table}, nil
}

// NewDecoderWithoutFramework skips loading the bundled framework table,
// for callers that only want references into the application's own
// resources.arsc to resolve.
func NewDecoderWithoutFramework(arsc []byte) (*Decoder, error) {
	table, err := ParseResourceTable(bytes.NewReader(arsc))
	if err != nil {
		return nil, err
	}
	return &Decoder{table: table}, nil
}

// Table returns the decoder's parsed resource table for direct lookups.
func (d *Decoder) Table() *ResourceTable { return d.table }

// AsXML decodes a single compiled binary XML file and renders it as
// textual XML (spec section 4.F), resolving references against the
// decoder's resource table. Attribute resolution failures degrade to
// their raw form and are reported through Logf, if set.
func (d *Decoder) AsXML(xmlBytes []byte) (string, error) {
	return RenderXMLWithLogf(bytes.NewReader(xmlBytes), d.table, d.logf)
}

// AsXMLReader is the io.Reader-accepting counterpart of AsXML, for
// callers streaming a compiled XML file rather than holding it as a
// byte slice (e.g. straight out of a ZipReaderFile).
func (d *Decoder) AsXMLReader(r io.Reader) (string, error) {
	return RenderXMLWithLogf(r, d.table, d.logf)
}

func (d *Decoder) logf(format string, args ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

// Apk is a thin façade over ZipReader + Decoder for the common "decode
// every compiled XML file in this APK" workflow (spec section 6).
type Apk struct {
	zip     *ZipReader
	decoder *Decoder
}

// OpenApk opens path as a ZIP, parses its resources.arsc if present
// (a missing resources.arsc is not an error - references simply won't
// resolve), and returns an Apk ready to export.
func OpenApk(path string) (*Apk, error) {
	zr, err := OpenZip(path)
	if err != nil {
		return nil, err
	}
	return newApk(zr)
}

func newApk(zr *ZipReader) (*Apk, error) {
	a := &Apk{zip: zr}

	resFile := zr.File["resources.arsc"]
	if resFile == nil {
		a.decoder = &Decoder{}
		return a, nil
	}

	raw, err := resFile.ReadAll(math.MaxInt64)
	if err != nil {
		return nil, newErr(KindTruncated, "OpenApk", err)
	}

	dec, err := NewDecoder(raw)
	if err != nil {
		return nil, err
	}
	a.decoder = dec
	return a, nil
}

// Close releases the underlying zip.
func (a *Apk) Close() error { return a.zip.Close() }

// Decoder exposes the Apk's resource decoder for direct XML rendering.
func (a *Apk) Decoder() *Decoder { return a.decoder }

// File looks up a single entry inside the APK's zip by its full
// in-archive path, for callers that want to read one file (e.g. the
// manifest) without exporting the whole APK.
func (a *Apk) File(name string) (*ZipReaderFile, bool) {
	f, ok := a.zip.File[name]
	return f, ok
}

// Export renders every binary-XML-shaped entry in the APK to plain
// textual XML under dst, preserving the ZIP's internal layout, and
// copies every other entry through unchanged. It is modeled on
// original_source's Apk::export, except that export continues past
// individual per-entry failures and reports them aggregated at the end.
// force controls whether an existing dst is overwritten.
func (a *Apk) Export(dst string, force bool) error {
	return exportApk(a, dst, force)
}
