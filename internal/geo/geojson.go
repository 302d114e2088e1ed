// Package geo holds the in-memory dataset, coordinate reference systems and
// the GeoJSON encoding of converted features.
package geo

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Dataset is an ordered set of features sharing one coordinate reference system.
// A nil CRS means the source did not declare one.
type Dataset struct {
	Features *geojson.FeatureCollection
	CRS      *CRS
	Name     string
}

// NewDataset returns an empty dataset with the given layer name.
func NewDataset(name string) *Dataset {
	return &Dataset{
		Name:     name,
		Features: geojson.NewFeatureCollection(),
	}
}

// Len returns the number of features.
func (d *Dataset) Len() int {
	return len(d.Features.Features)
}

// Bound returns the extent of all non-null geometries.
func (d *Dataset) Bound() (orb.Bound, bool) {
	var b orb.Bound
	found := false
	for _, f := range d.Features.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			b, found = f.Geometry.Bound(), true
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b, found
}

// MarshalOptions control the GeoJSON output.
type MarshalOptions struct {
	BBox   bool
	Indent bool
}

// CRSName returns the OGC URN for a system, CRS84 for WGS84.
func CRSName(c *CRS) string {
	switch {
	case c == nil:
		return ""
	case c.isWGS84():
		return "urn:ogc:def:crs:OGC:1.3:CRS84"
	case c.Code > 0:
		return "urn:ogc:def:crs:EPSG::" + strconv.Itoa(c.Code)
	}
	return ""
}

type collectionDoc struct {
	Type     string            `json:"type"`
	Name     string            `json:"name,omitempty"`
	CRS      *crsDoc           `json:"crs,omitempty"`
	BBox     geojson.BBox      `json:"bbox,omitempty"`
	Features []json.RawMessage `json:"features"`
}

type crsDoc struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
}

// nullFeatureDoc encodes a feature whose shape record was empty.
type nullFeatureDoc struct {
	ID         any                `json:"id,omitempty"`
	Type       string             `json:"type"`
	Geometry   *geojson.Geometry  `json:"geometry"`
	Properties geojson.Properties `json:"properties"`
}

// MarshalGeoJSON encodes the dataset as a FeatureCollection. The collection
// carries the layer name and a named crs member like GDAL's GeoJSON driver.
func MarshalGeoJSON(d *Dataset, opts MarshalOptions) ([]byte, error) {
	doc := collectionDoc{
		Type:     "FeatureCollection",
		Name:     d.Name,
		Features: make([]json.RawMessage, 0, d.Len()),
	}
	if name := CRSName(d.CRS); name != "" {
		doc.CRS = &crsDoc{Type: "name", Properties: map[string]string{"name": name}}
	}
	if opts.BBox {
		if b, ok := d.Bound(); ok {
			doc.BBox = geojson.NewBBox(b)
		}
	}

	for i, f := range d.Features.Features {
		var (
			raw []byte
			err error
		)
		if f.Geometry == nil {
			raw, err = json.Marshal(nullFeatureDoc{ID: f.ID, Type: "Feature", Properties: f.Properties})
		} else {
			if opts.BBox {
				f.BBox = geojson.NewBBox(f.Geometry.Bound())
			}
			raw, err = json.Marshal(f)
		}
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		doc.Features = append(doc.Features, raw)
	}

	if opts.Indent {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}
