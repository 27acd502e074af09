// Package assets holds the Data Dictionary definitions baked into the binary.
package assets

import "embed"

// DataDictionary contains data-dictionary/<version>.xml for every bundled DD release.
//
//go:embed data-dictionary/*.xml
var DataDictionary embed.FS
