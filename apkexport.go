package apkparser

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// isCompiledXMLEntry reports whether a ZIP entry name is one of the
// compiled-XML files Android recognizes: AndroidManifest.xml at the
// root, or anything under res/ ending in .xml. Ported from
// original_source's apk.rs Apk::export name check.
func isCompiledXMLEntry(name string) bool {
	return name == "AndroidManifest.xml" || (strings.HasPrefix(name, "res/") && strings.HasSuffix(name, ".xml"))
}

// exportApk writes every entry of a.zip under dst, decoding compiled
// XML entries to plain text and copying everything else verbatim.
// Unlike original_source's Apk::export (which aborts on the first
// entry error), failures are collected and reported together so a
// handful of unparseable resource files don't prevent exporting the
// rest of the APK.
func exportApk(a *Apk, dst string, force bool) error {
	if err := os.Mkdir(dst, 0o755); err != nil {
		if !os.IsExist(err) {
			return newErr(KindTruncated, "Export", err)
		}
		if !force {
			return newErr(KindTruncated, "Export", fmt.Errorf("%s already exists", dst))
		}
		if err := os.RemoveAll(dst); err != nil {
			return newErr(KindTruncated, "Export", fmt.Errorf("could not clean target directory: %w", err))
		}
		if err := os.Mkdir(dst, 0o755); err != nil {
			return newErr(KindTruncated, "Export", err)
		}
	}

	var failures []string

	for _, f := range a.zip.FilesOrdered {
		if f.IsDir {
			continue
		}
		if err := exportEntry(a, dst, f); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", f.Name, err))
		}
	}

	if len(failures) > 0 {
		return newErr(KindTruncated, "Export", fmt.Errorf("%d entries failed:\n%s", len(failures), strings.Join(failures, "\n")))
	}
	return nil
}

func exportEntry(a *Apk, dst string, f *ZipReaderFile) error {
	content, err := f.ReadAll(math.MaxInt64)
	if err != nil {
		return err
	}

	var decodeErr error
	if isCompiledXMLEntry(f.Name) {
		text, err := a.decoder.AsXML(content)
		if err != nil {
			a.decoder.logf("export: could not decode %s as XML: %v", f.Name, err)
			decodeErr = fmt.Errorf("decode as XML: %w", err)
		} else {
			content = []byte(text)
		}
	}

	// Write whatever we have - decoded text, or the raw compiled bytes
	// as a best-effort fallback - but still surface decodeErr so the
	// caller's aggregated failure list mentions this entry.
	if err := writeExportedFile(dst, f.Name, content); err != nil {
		return err
	}
	return decodeErr
}

func writeExportedFile(base, relative string, content []byte) error {
	full := filepath.Join(base, filepath.FromSlash(relative))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, content, 0o644)
}
