package main

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"fortio.org/safecast"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

// formatAuto selects the schema from each document's root element.
const formatAuto = "auto"

var (
	ErrUnknownFormat = errors.New("unrecognized document format")
	ErrEmptyDocument = errors.New("document has no root element")
	ErrExtraRoot     = errors.New("document has more than one root element")
)

// countOptions selects how characters are counted.
type countOptions struct {
	NoSpaces    bool // drop all whitespace, not only leading and trailing
	NoNormalize bool // count combining marks as written, without NFC
}

// convention describes the counting rules, for readers of the catalog.
func (o countOptions) convention() string {
	form := "NFC code points"
	if o.NoNormalize {
		form = "code points as written"
	}
	spaces := "interior spaces kept"
	if o.NoSpaces {
		spaces = "all whitespace removed"
	}
	return form + ", " + spaces
}

// Parser extracts metrics from transcription files. It holds no per-file
// state and is safe for concurrent use.
type Parser struct {
	schemas *SchemaSet
	fixed   *Schema // nil when detecting per document
	opts    countOptions
}

// newParser returns a parser for the named format ("auto" or a schema name).
func newParser(schemas *SchemaSet, format string, opts countOptions) (*Parser, error) {
	p := &Parser{schemas: schemas, opts: opts}
	if format == "" || strings.EqualFold(format, formatAuto) {
		return p, nil
	}
	s, ok := schemas.Lookup(format)
	if !ok {
		return nil, fmt.Errorf("unknown format %q (known: %s, %s)", format, formatAuto, strings.Join(schemas.Names(), ", "))
	}
	p.fixed = s
	return p, nil
}

// ParseFile parses one file. Failures are reported in the record's Err and
// leave all counts at zero.
func (p *Parser) ParseFile(path string) FileRecord {
	f, err := os.Open(path)
	if err != nil {
		return FileRecord{Path: path, Err: err}
	}
	defer f.Close()

	rec, err := p.parse(f)
	rec.Path = path
	if err != nil {
		return FileRecord{Path: path, Err: err}
	}
	return rec
}

// segment is a line or region waiting for its type to be resolved once the
// whole document (and so every label declaration) has been read.
type segment struct {
	region bool
	attrs  map[string]string
}

func (p *Parser) parse(r io.Reader) (FileRecord, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		rec      FileRecord
		schema   = p.fixed
		rootSeen bool
		stack    []string
		segments []segment
		labels   = make(map[string]string)

		capturing    bool
		captureDepth int
		text         strings.Builder
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return FileRecord{}, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := t.Name.Local
			if len(stack) == 0 {
				if rootSeen {
					return FileRecord{}, fmt.Errorf("%w: second root <%s>", ErrExtraRoot, local)
				}
				rootSeen = true
				switch {
				case schema == nil:
					s, ok := p.schemas.ForRoot(local)
					if !ok {
						return FileRecord{}, fmt.Errorf("%w: root element <%s>", ErrUnknownFormat, local)
					}
					schema = s
				case len(schema.Roots) > 0 && !containsString(schema.Roots, local):
					return FileRecord{}, fmt.Errorf("%w: root element <%s> is not a %s document", ErrUnknownFormat, local, schema.Name)
				}
			}
			stack = append(stack, local)

			if src := schema.SegmentType.Labels; src != nil && local == src.Element {
				if id, ok := attr(t.Attr, src.ID); ok {
					label, _ := attr(t.Attr, src.Label)
					labels[id] = label
				}
			}
			if schema.isRegion(local) {
				rec.Counts.Regions++
				segments = append(segments, segment{region: true, attrs: attrMap(t.Attr)})
			}
			if schema.isLine(local) {
				rec.Counts.Lines++
				segments = append(segments, segment{attrs: attrMap(t.Attr)})
			}
			if capturing {
				continue
			}
			if rule, ok := schema.textRule(stack); ok {
				if rule.Attr != "" {
					v, _ := attr(t.Attr, rule.Attr)
					n, err := p.countChars(v)
					if err != nil {
						return FileRecord{}, err
					}
					rec.Counts.Chars += n
				} else {
					capturing = true
					captureDepth = len(stack)
					text.Reset()
				}
			}

		case xml.CharData:
			if capturing {
				text.Write(t)
			}

		case xml.EndElement:
			if capturing && len(stack) == captureDepth {
				n, err := p.countChars(text.String())
				if err != nil {
					return FileRecord{}, err
				}
				rec.Counts.Chars += n
				capturing = false
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !rootSeen {
		return FileRecord{}, ErrEmptyDocument
	}

	rec.Counts.Files = 1
	rec.LineTypes = make(TypeCounts)
	rec.RegionTypes = make(TypeCounts)
	for _, seg := range segments {
		label := schema.segmentType(seg.attrs, labels)
		if seg.region {
			rec.RegionTypes[label]++
		} else {
			rec.LineTypes[label]++
		}
	}
	return rec, nil
}

// countChars returns the number of characters in one text value after
// trimming and, unless disabled, NFC normalization. Whitespace-only values
// count as zero.
func (p *Parser) countChars(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if p.opts.NoSpaces {
		s = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, s)
	}
	if !p.opts.NoNormalize {
		s = norm.NFC.String(s)
	}
	return safecast.Conv[uint64](utf8.RuneCountInString(s))
}

// attr finds an attribute by local name, ignoring its namespace.
func attr(attrs []xml.Attr, local string) (string, bool) {
	for _, a := range attrs {
		if !isNamespaceDecl(a) && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func attrMap(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if !isNamespaceDecl(a) {
			m[a.Name.Local] = a.Value
		}
	}
	return m
}

// isNamespaceDecl reports whether a is an xmlns or xmlns:prefix declaration.
func isNamespaceDecl(a xml.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
}
