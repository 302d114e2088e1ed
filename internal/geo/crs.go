package geo

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// WGS84Code is the EPSG code of the geographic WGS84 system used by GeoJSON.
const WGS84Code = 4326

// ErrUnknownCRS is returned when a CRS reference cannot be resolved.
var ErrUnknownCRS = errors.New("unknown coordinate reference system")

// CRS describes a coordinate reference system by WKT or a PROJ string.
// PROJ interprets the definition; the EPSG code only names and compares it.
type CRS struct {
	Name    string   `yaml:"name" json:"name,omitempty"`
	Proj    string   `yaml:"proj,omitempty" json:"proj,omitempty"`
	WKT     string   `yaml:"wkt,omitempty" json:"wkt,omitempty"`
	Aliases []string `yaml:"aliases,omitempty" json:"-"`
	Code    int      `yaml:"epsg,omitempty" json:"epsg,omitempty"`

	// set from the WKT axes
	geographic bool
	northFirst bool
}

// String returns the shortest human readable reference.
func (c *CRS) String() string {
	switch {
	case c == nil:
		return "<none>"
	case c.Code > 0:
		return "EPSG:" + strconv.Itoa(c.Code)
	case c.Name != "":
		return c.Name
	default:
		return c.Proj
	}
}

// Definition returns the text handed to PROJ. WKT wins over the PROJ string,
// which is marked as a CRS so proj_create_crs_to_crs accepts it.
func (c *CRS) Definition() string {
	switch {
	case c.WKT != "":
		return c.WKT
	case c.Proj != "":
		if _, ok := projParams(c.Proj)["type"]; ok {
			return c.Proj
		}
		return c.Proj + " +type=crs"
	case c.Code > 0:
		return "EPSG:" + strconv.Itoa(c.Code)
	}
	return ""
}

// Geographic reports whether coordinates are angles rather than map units.
func (c *CRS) Geographic() bool {
	if c.WKT != "" {
		return c.geographic
	}
	switch projParams(c.Proj)["proj"] {
	case "longlat", "latlong", "lonlat", "latlon":
		return true
	}
	return false
}

// Equal reports whether two systems describe the same coordinates.
// EPSG codes are compared when both are known, definitions otherwise.
func (c *CRS) Equal(o *CRS) bool {
	if c == nil || o == nil {
		return c == o
	}
	if c.Code > 0 && o.Code > 0 {
		return c.Code == o.Code
	}
	if c.isWGS84() && o.isWGS84() {
		return true
	}
	if c.WKT != "" || o.WKT != "" {
		return strings.Join(strings.Fields(c.WKT), " ") == strings.Join(strings.Fields(o.WKT), " ")
	}

	return normalizeProj(c.Proj) == normalizeProj(o.Proj)
}

// isWGS84 matches geographic definitions on the WGS84 datum without a shift.
func (c *CRS) isWGS84() bool {
	if c.Code == WGS84Code {
		return true
	}
	if c.WKT != "" || !c.Geographic() {
		return false
	}

	p := projParams(c.Proj)
	if shift, ok := p["towgs84"]; ok && !zeroShift(shift) {
		return false
	}

	return p["datum"] == "WGS84" || p["ellps"] == "WGS84"
}

// Registry indexes known systems by EPSG code and by name.
type Registry struct {
	byCode map[int]*CRS
	byName map[string]*CRS
}

// NewRegistry returns a registry holding the built-in systems.
func NewRegistry() *Registry {
	r := &Registry{
		byCode: make(map[int]*CRS),
		byName: make(map[string]*CRS),
	}
	for _, c := range builtin {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}

	return r
}

// Register adds or replaces a system definition.
func (r *Registry) Register(c CRS) error {
	if strings.TrimSpace(c.Proj) == "" && strings.TrimSpace(c.WKT) == "" {
		return fmt.Errorf("crs %q: empty proj and wkt definition", c.String())
	}
	if c.Code <= 0 && c.Name == "" {
		return errors.New("crs requires an epsg code or a name")
	}

	entry := c
	if entry.WKT != "" {
		root, err := parseWKTNode(strings.TrimSpace(entry.WKT))
		if err != nil {
			return fmt.Errorf("crs %q: %w", c.String(), err)
		}
		entry.geographic = geographicRoot(root)
		entry.northFirst = northFirst(root)
	}
	if entry.Code > 0 {
		r.byCode[entry.Code] = &entry
	}
	for _, name := range append([]string{entry.Name}, entry.Aliases...) {
		if key := nameKey(name); key != "" {
			r.byName[key] = &entry
		}
	}

	return nil
}

// Lookup returns the system registered for an EPSG code.
// WGS84 UTM zones (326xx, 327xx) are derived on demand.
func (r *Registry) Lookup(code int) (*CRS, error) {
	if c, ok := r.byCode[code]; ok {
		return c, nil
	}
	if c, ok := utmZone(code); ok {
		return c, nil
	}

	return nil, fmt.Errorf("EPSG:%d: %w", code, ErrUnknownCRS)
}

// LookupName finds a system by its name or one of its aliases.
func (r *Registry) LookupName(name string) (*CRS, bool) {
	c, ok := r.byName[nameKey(name)]
	return c, ok
}

// Resolve accepts "EPSG:3826", "3826", a registered name, a raw PROJ string
// or WKT text.
func (r *Registry) Resolve(ref string) (*CRS, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty reference: %w", ErrUnknownCRS)
	}
	if strings.HasPrefix(ref, "+") {
		return &CRS{Proj: ref}, nil
	}
	if strings.HasSuffix(ref, "]") {
		return ParseWKT(ref, r)
	}

	digits := ref
	if i := strings.IndexByte(ref, ':'); i > 0 && strings.EqualFold(ref[:i], "EPSG") {
		digits = ref[i+1:]
	}
	if code, err := strconv.Atoi(digits); err == nil {
		return r.Lookup(code)
	}

	if c, ok := r.LookupName(ref); ok {
		return c, nil
	}

	return nil, fmt.Errorf("%q: %w", ref, ErrUnknownCRS)
}

var builtin = []CRS{
	{
		Code:    4326,
		Name:    "WGS 84",
		Aliases: []string{"WGS84", "GCS_WGS_1984", "CRS84"},
		Proj:    "+proj=longlat +datum=WGS84 +no_defs",
	},
	{
		Code:    3857,
		Name:    "WGS 84 / Pseudo-Mercator",
		Aliases: []string{"WGS_1984_Web_Mercator_Auxiliary_Sphere", "Web Mercator", "Popular Visualisation CRS / Mercator"},
		Proj:    "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs",
	},
	{
		Code:    3824,
		Name:    "TWD97",
		Aliases: []string{"GCS_TWD_1997"},
		Proj:    "+proj=longlat +ellps=GRS80 +no_defs",
	},
	{
		Code:    3826,
		Name:    "TWD97 / TM2 zone 121",
		Aliases: []string{"TWD97_TM2_121", "TWD_1997_TM_Taiwan", "TWD97 TM2"},
		Proj:    "+proj=tmerc +lat_0=0 +lon_0=121 +k=0.9999 +x_0=250000 +y_0=0 +ellps=GRS80 +units=m +no_defs",
	},
	{
		Code:    3825,
		Name:    "TWD97 / TM2 zone 119",
		Aliases: []string{"TWD97_TM2_119", "TWD_1997_TM_Penghu"},
		Proj:    "+proj=tmerc +lat_0=0 +lon_0=119 +k=0.9999 +x_0=250000 +y_0=0 +ellps=GRS80 +units=m +no_defs",
	},
	{
		Code:    3828,
		Name:    "TWD67 / TM2 zone 121",
		Aliases: []string{"TWD67_TM2_121", "TWD_1967_TM_Taiwan"},
		Proj: "+proj=tmerc +lat_0=0 +lon_0=121 +k=0.9999 +x_0=250000 +y_0=0 +ellps=aust_SA " +
			"+towgs84=-752,-358,-179,-0.0000011698,0.0000018398,0.0000009822,0.00002329 +units=m +no_defs",
	},
	{
		Code:    4490,
		Name:    "China Geodetic Coordinate System 2000",
		Aliases: []string{"CGCS2000", "GCS_China_Geodetic_Coordinate_System_2000"},
		Proj:    "+proj=longlat +ellps=GRS80 +no_defs",
	},
}

func utmZone(code int) (*CRS, bool) {
	var zone int
	var south bool
	switch {
	case code > 32600 && code <= 32660:
		zone = code - 32600
	case code > 32700 && code <= 32760:
		zone, south = code-32700, true
	default:
		return nil, false
	}

	hemi, flag := "N", ""
	if south {
		hemi, flag = "S", " +south"
	}

	return &CRS{
		Code: code,
		Name: fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemi),
		Proj: fmt.Sprintf("+proj=utm +zone=%d%s +datum=WGS84 +units=m +no_defs", zone, flag),
	}, true
}

// nameKey folds case and drops everything but letters and digits,
// so "TWD97 / TM2 zone 121" and "TWD97_TM2_zone_121" collide.
func nameKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// projParams splits "+k=v +flag" into a map; flags map to "".
func projParams(def string) map[string]string {
	params := make(map[string]string)
	for _, tok := range strings.Fields(def) {
		tok = strings.TrimPrefix(tok, "+")
		k, v, _ := strings.Cut(tok, "=")
		params[k] = v
	}
	return params
}

// normalizeProj drops parameters that do not change coordinates and sorts the rest.
func normalizeProj(def string) string {
	params := projParams(def)
	for _, k := range []string{"no_defs", "wktext", "type", "units"} {
		delete(params, k)
	}
	if params["datum"] == "WGS84" {
		delete(params, "datum")
		params["ellps"] = "WGS84"
	}
	if shift, ok := params["towgs84"]; ok && zeroShift(shift) {
		delete(params, "towgs84")
	}

	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				v = strconv.FormatFloat(f, 'g', -1, 64)
			}
			k += "=" + v
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return strings.Join(keys, " ")
}

func zeroShift(shift string) bool {
	for _, v := range strings.Split(shift, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f != 0 {
			return false
		}
	}
	return true
}
