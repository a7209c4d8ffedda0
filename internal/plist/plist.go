// Package plist reads just enough of Apple's XML property-list format to
// extract a launchd-style ProgramArguments array, as used by
// --apple-configuration. No third-party plist library appears anywhere in
// the reference corpus, and the format needed here is a single known key
// holding an array of strings, so a minimal encoding/xml-based reader is
// used instead of a general-purpose plist implementation.
package plist

import (
	"encoding/xml"
	"fmt"
	"os"
)

// plistDict keeps the dict's children in document order, so a <key> can be
// paired with the value element that follows it.
type plistDict struct {
	Items []plistItem `xml:",any"`
}

type plistItem struct {
	XMLName xml.Name
	Text    string   `xml:",chardata"`
	Strings []string `xml:"string"`
}

type plistDoc struct {
	Dict plistDict `xml:"dict"`
}

// ProgramArguments reads path as an XML property list and returns the
// string array under the top-level ProgramArguments key.
func ProgramArguments(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plist: read %s: %w", path, err)
	}

	var doc plistDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("plist: parse %s: %w", path, err)
	}

	items := doc.Dict.Items
	for i, item := range items {
		if item.XMLName.Local != "key" || item.Text != "ProgramArguments" {
			continue
		}
		if i+1 >= len(items) || items[i+1].XMLName.Local != "array" {
			return nil, fmt.Errorf("plist: %s: ProgramArguments key has no matching array", path)
		}
		return items[i+1].Strings, nil
	}
	return nil, fmt.Errorf("plist: %s: ProgramArguments key not found", path)
}
