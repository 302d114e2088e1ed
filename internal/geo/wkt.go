package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidWKT is returned for malformed WKT text.
var ErrInvalidWKT = errors.New("invalid WKT")

// wktNode is one KEYWORD[...] element. Args hold strings, float64 numbers,
// bare enum words and nested nodes in source order.
type wktNode struct {
	Keyword string
	Args    []any
}

func (n *wktNode) name() string {
	if len(n.Args) > 0 {
		if s, ok := n.Args[0].(string); ok {
			return s
		}
	}
	return ""
}

func (n *wktNode) child(keywords ...string) *wktNode {
	for _, a := range n.Args {
		c, ok := a.(*wktNode)
		if !ok {
			continue
		}
		for _, kw := range keywords {
			if c.Keyword == kw {
				return c
			}
		}
	}
	return nil
}

func (n *wktNode) children(keyword string) []*wktNode {
	var out []*wktNode
	for _, a := range n.Args {
		if c, ok := a.(*wktNode); ok && c.Keyword == keyword {
			out = append(out, c)
		}
	}
	return out
}

func (n *wktNode) number(i int) (float64, bool) {
	if i >= len(n.Args) {
		return 0, false
	}
	switch v := n.Args[i].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// epsg returns the code of an AUTHORITY["EPSG",n] or ID["EPSG",n] child.
func (n *wktNode) epsg() int {
	auth := n.child("AUTHORITY", "ID")
	if auth == nil || !strings.EqualFold(auth.name(), "EPSG") {
		return 0
	}
	code, ok := auth.number(1)
	if !ok {
		return 0
	}
	return int(code)
}

type wktParser struct {
	src string
	pos int
}

func parseWKTNode(src string) (*wktNode, error) {
	p := &wktParser{src: src}
	node, err := p.node()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("%w: trailing data at offset %d", ErrInvalidWKT, p.pos)
	}
	return node, nil
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *wktParser) word() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || c == '.' || c == '-' || c == '+' ||
			unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *wktParser) node() (*wktNode, error) {
	p.skipSpace()
	kw := p.word()
	if kw == "" {
		return nil, fmt.Errorf("%w: keyword expected at offset %d", ErrInvalidWKT, p.pos)
	}
	p.skipSpace()
	if p.pos >= len(p.src) || (p.src[p.pos] != '[' && p.src[p.pos] != '(') {
		return nil, fmt.Errorf("%w: %s: opening bracket expected", ErrInvalidWKT, kw)
	}
	closer := byte(']')
	if p.src[p.pos] == '(' {
		closer = ')'
	}
	p.pos++

	n := &wktNode{Keyword: strings.ToUpper(kw)}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, fmt.Errorf("%w: %s: unterminated", ErrInvalidWKT, kw)
		}

		switch c := p.src[p.pos]; {
		case c == closer:
			p.pos++
			return n, nil
		case c == ',':
			p.pos++
			continue
		case c == '"':
			s, err := p.quoted()
			if err != nil {
				return nil, err
			}
			n.Args = append(n.Args, s)
		default:
			save := p.pos
			w := p.word()
			if w == "" {
				return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidWKT, c, p.pos)
			}
			if f, err := strconv.ParseFloat(w, 64); err == nil {
				n.Args = append(n.Args, f)
				continue
			}
			p.skipSpace()
			if p.pos < len(p.src) && (p.src[p.pos] == '[' || p.src[p.pos] == '(') {
				p.pos = save
				child, err := p.node()
				if err != nil {
					return nil, err
				}
				n.Args = append(n.Args, child)
				continue
			}
			n.Args = append(n.Args, w)
		}
	}
}

func (p *wktParser) quoted() (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		// "" escapes a quote inside a string
		if p.pos < len(p.src) && p.src[p.pos] == '"' {
			b.WriteByte('"')
			p.pos++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("%w: unterminated string", ErrInvalidWKT)
}

// ParseWKT reads the content of a .prj file. The text itself becomes the
// PROJ definition. The EPSG code comes from the root authority, a registry
// name match or a plain WGS84 geographic system.
func ParseWKT(wkt string, reg *Registry) (*CRS, error) {
	wkt = strings.TrimSpace(wkt)
	root, err := parseWKTNode(wkt)
	if err != nil {
		return nil, err
	}

	switch root.Keyword {
	case "GEOGCS", "GEOGCRS", "GEODCRS", "GEOGRAPHICCRS", "PROJCS", "PROJCRS", "PROJECTEDCRS":
	default:
		return nil, fmt.Errorf("%s: %w", root.Keyword, ErrUnknownCRS)
	}

	c := &CRS{
		Name:       root.name(),
		WKT:        wkt,
		Code:       root.epsg(),
		geographic: geographicRoot(root),
		northFirst: northFirst(root),
	}
	if c.Code > 0 {
		return c, nil
	}

	if known, ok := reg.LookupName(c.Name); ok && known.Geographic() == c.geographic {
		c.Code = known.Code
	}
	// a WGS84 name alone does not rule out another meridian or unit
	if c.Code == WGS84Code || (c.Code == 0 && c.geographic) {
		c.Code = 0
		if plainWGS84(root) {
			c.Code = WGS84Code
		}
	}

	return c, nil
}

func geographicRoot(root *wktNode) bool {
	switch root.Keyword {
	case "GEOGCS", "GEOGCRS", "GEODCRS", "GEOGRAPHICCRS":
		return true
	}
	return false
}

// northFirst reports a first axis pointing north or south. WKT1 without AXIS
// defaults to east/north.
func northFirst(root *wktNode) bool {
	axes := root.children("AXIS")
	if len(axes) == 0 || len(axes[0].Args) < 2 {
		return false
	}

	dir, _ := axes[0].Args[1].(string)
	return strings.EqualFold(dir, "north") || strings.EqualFold(dir, "south")
}

// plainWGS84 matches a geographic system on the WGS84 datum with the
// Greenwich meridian and degree units.
func plainWGS84(geog *wktNode) bool {
	datum := geog.child("DATUM", "GEODETICDATUM")
	if datum == nil {
		return false
	}
	switch nameKey(datum.name()) {
	case "dwgs1984", "wgs1984", "worldgeodeticsystem1984":
	default:
		return false
	}
	if shift := datum.child("TOWGS84"); shift != nil {
		for i := range shift.Args {
			if v, ok := shift.number(i); !ok || v != 0 {
				return false
			}
		}
	}

	if pm := geog.child("PRIMEM", "PRIMEMERIDIAN"); pm != nil {
		if v, ok := pm.number(1); !ok || v != 0 {
			return false
		}
	}
	if unit := geog.child("UNIT", "ANGLEUNIT"); unit != nil {
		if v, ok := unit.number(1); !ok || math.Abs(v-math.Pi/180) > 1e-12 {
			return false
		}
	}

	return true
}
