package dd

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"imaspy/internal/ids"
)

// Definition is a parsed Data Dictionary. It implements ids.Definitions.
type Definition struct {
	version string
	cocos   string
	names   []string
	idss    map[string]*ids.Metadata
	// Attributes of each <IDS> element, kept for documentation purposes.
	attrs map[string]map[string]string
}

// Version returns the DD version.
func (d *Definition) Version() string { return d.version }

// Cocos returns the COCOS convention number declared by the DD, if any.
func (d *Definition) Cocos() string { return d.cocos }

// IDSNames returns the IDS names in DD order.
func (d *Definition) IDSNames() []string { return d.names }

// IDS returns the toplevel metadata of the named IDS.
func (d *Definition) IDS(name string) (*ids.Metadata, bool) {
	m, ok := d.idss[name]
	return m, ok
}

// Parse parses DD XML. fallbackVersion is used when the XML has no <version>.
func Parse(data []byte, fallbackVersion string) (*Definition, error) {
	d := &Definition{
		idss:  make(map[string]*ids.Metadata),
		attrs: make(map[string]map[string]string),
	}
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		stack   []*ids.Metadata
		sawRoot bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid DD XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case !sawRoot:
				if t.Name.Local != "IDSs" {
					return nil, fmt.Errorf("invalid DD XML: root element is <%s>, expected <IDSs>", t.Name.Local)
				}
				sawRoot = true
			case len(stack) == 0 && t.Name.Local == "version":
				if d.version, err = charData(dec, t); err != nil {
					return nil, err
				}
			case len(stack) == 0 && t.Name.Local == "cocos":
				if d.cocos, err = charData(dec, t); err != nil {
					return nil, err
				}
			case len(stack) == 0 && t.Name.Local == "IDS":
				attrs := attrMap(t.Attr)
				m, err := ids.NewMetadata(attrs, nil)
				if err != nil {
					return nil, fmt.Errorf("invalid DD XML: %w", err)
				}
				if _, dup := d.idss[m.Name]; dup {
					return nil, fmt.Errorf("invalid DD XML: duplicate IDS %s", m.Name)
				}
				d.idss[m.Name] = m
				d.attrs[m.Name] = attrs
				d.names = append(d.names, m.Name)
				stack = append(stack, m)
			case len(stack) > 0 && t.Name.Local == "field":
				m, err := ids.NewMetadata(attrMap(t.Attr), stack[len(stack)-1])
				if err != nil {
					return nil, fmt.Errorf("invalid DD XML in %s: %w", stack[0].Name, err)
				}
				stack = append(stack, m)
			default:
				// <utilities> and anything else we do not model.
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("invalid DD XML: %w", err)
				}
			}
		case xml.EndElement:
			if len(stack) > 0 && (t.Name.Local == "field" || t.Name.Local == "IDS") {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !sawRoot {
		return nil, fmt.Errorf("invalid DD XML: no <IDSs> element")
	}
	if d.version == "" {
		d.version = fallbackVersion
	}
	return d, nil
}

func charData(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := dec.DecodeElement(&s, &start); err != nil {
		return "", fmt.Errorf("invalid DD XML: %w", err)
	}
	return strings.TrimSpace(s), nil
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}
