package main

import (
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	pageNS = "http://schema.primaresearch.org/PAGE/gts/pagecontent/2019-07-15"
	altoNS = "http://www.loc.gov/standards/alto/ns-v4#"
)

// pageXML builds a PAGE document with one TextRegion per argument, each
// holding one TextLine per string.
func pageXML(regions ...[]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, "<PcGts xmlns=%q>\n  <Page imageFilename=\"page.jpg\">\n", pageNS)
	for i, lines := range regions {
		fmt.Fprintf(&b, "    <TextRegion id=\"r%d\" custom=\"structure {type:MainZone;}\">\n", i)
		for j, text := range lines {
			fmt.Fprintf(&b, "      <TextLine id=\"r%d_l%d\" custom=\"structure {type:DefaultLine;}\">\n", i, j)
			fmt.Fprintf(&b, "        <TextEquiv><Unicode>%s</Unicode></TextEquiv>\n", html.EscapeString(text))
			b.WriteString("      </TextLine>\n")
		}
		b.WriteString("    </TextRegion>\n")
	}
	b.WriteString("  </Page>\n</PcGts>\n")
	return b.String()
}

// altoXML builds an ALTO document with one TextBlock per argument, each
// holding one TextLine per string, split into String elements on spaces.
func altoXML(regions ...[]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, "<alto xmlns=%q>\n", altoNS)
	b.WriteString("  <Tags>\n")
	b.WriteString("    <OtherTag ID=\"BT1\" LABEL=\"MainZone\" DESCRIPTION=\"block type MainZone\"/>\n")
	b.WriteString("    <OtherTag ID=\"LT1\" LABEL=\"DefaultLine\" DESCRIPTION=\"line type DefaultLine\"/>\n")
	b.WriteString("  </Tags>\n  <Layout><Page ID=\"p1\"><PrintSpace>\n")
	for i, lines := range regions {
		fmt.Fprintf(&b, "    <TextBlock ID=\"b%d\" TAGREFS=\"BT1\">\n", i)
		for j, text := range lines {
			fmt.Fprintf(&b, "      <TextLine ID=\"b%d_l%d\" TAGREFS=\"LT1\">\n", i, j)
			for k, word := range strings.Fields(text) {
				if k > 0 {
					b.WriteString("        <SP/>\n")
				}
				fmt.Fprintf(&b, "        <String CONTENT=%q/>\n", html.EscapeString(word))
			}
			b.WriteString("      </TextLine>\n")
		}
		b.WriteString("    </TextBlock>\n")
	}
	b.WriteString("  </PrintSpace></Page></Layout>\n</alto>\n")
	return b.String()
}

// linesOf returns n lines of width letters each.
func linesOf(n, width int, letter string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strings.Repeat(letter, width)
	}
	return out
}

const malformedXML = "<?xml version=\"1.0\"?>\n<PcGts><Page><TextRegion>\n"

// writeFile creates dir/rel with content, creating parent directories.
func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func testSchemas(t *testing.T) *SchemaSet {
	t.Helper()
	set, err := newSchemaSet(nil)
	require.NoError(t, err)
	return set
}

func testParser(t *testing.T) *Parser {
	t.Helper()
	p, err := newParser(testSchemas(t), formatAuto, countOptions{})
	require.NoError(t, err)
	return p
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
