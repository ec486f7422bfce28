// Package mediatypes defines which files the library scanner treats as
// videos, and the output formats the renderers may produce.
//
// Extension matching is case-insensitive:
//
//	mediatypes.IsVideo("/library/Holiday.MP4") // true
//	mediatypes.IsHidden(".DS_Store")           // true
package mediatypes
