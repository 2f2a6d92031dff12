// Package snapshot copies an array file to a blob store and back.
//
// A snapshot of name lives under the directory name/ of the store:
//
//	name/DATA-000003.snap       compressed file bytes
//	name/MANIFEST-000003.json   codec-encoded Manifest
//	name/CURRENT                base name of the newest committed manifest
//
// Writing a snapshot uploads the data blob first, then the manifest, then
// replaces CURRENT. A snapshot whose CURRENT update never happened is
// invisible to Load with seq 0 but can still be addressed by sequence.
package snapshot
