package apkparser

import _ "embed"

// frameworkTable is a minimal, hand-built resource table standing in
// for the real android framework resources.arsc (which ships as part
// of the Android SDK and is far too large to embed here). It carries a
// single package ("android", id 1) with one attr entry so that
// NewDecoder has something real to merge and resolve
// android:-namespaced references against; it is not extracted from any
// actual AOSP build.
//
//go:embed internal/assets/framework.arsc
var frameworkTable []byte

// FrameworkResources returns the bytes of the embedded stand-in
// framework resource table, suitable for passing to ParseResourceTable.
func FrameworkResources() []byte {
	return frameworkTable
}
