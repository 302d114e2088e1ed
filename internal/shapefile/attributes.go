package shapefile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// codePages maps .cpg code page numbers and common aliases to encodings
// htmlindex does not know under those names.
var codePages = map[string]encoding.Encoding{
	"65001":  unicode.UTF8,
	"utf8":   unicode.UTF8,
	"950":    traditionalchinese.Big5,
	"cp950":  traditionalchinese.Big5,
	"936":    simplifiedchinese.GBK,
	"cp936":  simplifiedchinese.GBK,
	"54936":  simplifiedchinese.GB18030,
	"437":    charmap.CodePage437,
	"850":    charmap.CodePage850,
	"866":    charmap.CodePage866,
	"88591":  charmap.ISO8859_1,
	"8859_1": charmap.ISO8859_1,
	"1250":   charmap.Windows1250,
	"1251":   charmap.Windows1251,
	"1252":   charmap.Windows1252,
	"1253":   charmap.Windows1253,
	"1254":   charmap.Windows1254,
	"1257":   charmap.Windows1257,
}

// LookupEncoding resolves a .cpg value or encoding label.
func LookupEncoding(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "ansi ")
	if enc, ok := codePages[key]; ok {
		return enc, nil
	}

	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", name, err)
	}
	return enc, nil
}

// openDecoder picks the DBF encoding from the .cpg file, then the fallback.
// A nil decoder means bytes are taken as UTF-8.
func openDecoder(base, fallback string) (*encoding.Decoder, string, error) {
	name := fallback
	if p, ok := sibling(base, ".cpg"); ok {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, "", err
		}
		if cpg := strings.TrimSpace(string(data)); cpg != "" {
			name = cpg
		}
	}
	if name == "" {
		return nil, "UTF-8", nil
	}

	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, "", err
	}
	if enc == unicode.UTF8 {
		return nil, name, nil
	}

	return enc.NewDecoder(), name, nil
}

type attributeReader struct {
	r      shp.SequentialReader
	dec    *encoding.Decoder
	fields []shp.Field
	names  []string
}

func newAttributeReader(r shp.SequentialReader, dec *encoding.Decoder) *attributeReader {
	a := &attributeReader{r: r, dec: dec, fields: r.Fields()}
	a.names = make([]string, len(a.fields))
	for i, f := range a.fields {
		a.names[i] = a.text(f.String())
	}
	return a
}

func (a *attributeReader) text(raw string) string {
	raw = strings.TrimRight(raw, " \x00")
	if a.dec == nil {
		return raw
	}
	s, err := a.dec.String(raw)
	if err != nil {
		return raw
	}
	return s
}

// row converts the current record's cells.
func (a *attributeReader) row() geojson.Properties {
	props := make(geojson.Properties, len(a.fields))
	for i, f := range a.fields {
		raw := a.r.Attribute(i)
		props[a.names[i]] = a.value(f, raw)
	}
	return props
}

// value converts one DBF cell. Blank cells become nil.
func (a *attributeReader) value(f shp.Field, raw string) any {
	trimmed := strings.Trim(raw, " \x00")

	switch f.Fieldtype {
	case 'N', 'F':
		if trimmed == "" || strings.Trim(trimmed, "*") == "" {
			return nil
		}
		if f.Fieldtype == 'N' && f.Precision == 0 {
			if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
				return v
			}
		}
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			log.Debug().Str("field", f.String()).Str("value", trimmed).Msg("Unparsable number, using null")
			return nil
		}
		return v

	case 'L':
		switch trimmed {
		case "T", "t", "Y", "y":
			return true
		case "F", "f", "N", "n":
			return false
		}
		return nil

	case 'D':
		if trimmed == "" || strings.Trim(trimmed, "0") == "" {
			return nil
		}
		if len(trimmed) == 8 {
			return trimmed[0:4] + "-" + trimmed[4:6] + "-" + trimmed[6:8]
		}
		return trimmed
	}

	if trimmed == "" {
		return nil
	}
	return a.text(raw)
}
