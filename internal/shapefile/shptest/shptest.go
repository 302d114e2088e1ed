// Package shptest writes small shapefiles for tests.
package shptest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
)

// WGS84 is the ESRI .prj text for geographic WGS84.
const WGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],` +
	`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// TWD97 is the ESRI .prj text for TWD97 / TM2 zone 121.
const TWD97 = `PROJCS["TWD_1997_TM_Taiwan",GEOGCS["GCS_TWD_1997",DATUM["D_TWD_1997",` +
	`SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],` +
	`PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",250000.0],PARAMETER["False_Northing",0.0],` +
	`PARAMETER["Central_Meridian",121.0],PARAMETER["Scale_Factor",0.9999],PARAMETER["Latitude_Of_Origin",0.0],` +
	`UNIT["Meter",1.0]]`

// WebMercator is the ESRI .prj text for EPSG:3857.
const WebMercator = `PROJCS["WGS_1984_Web_Mercator_Auxiliary_Sphere",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",` +
	`SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],` +
	`PROJECTION["Mercator_Auxiliary_Sphere"],PARAMETER["False_Easting",0.0],PARAMETER["False_Northing",0.0],` +
	`PARAMETER["Central_Meridian",0.0],PARAMETER["Standard_Parallel_1",0.0],PARAMETER["Auxiliary_Sphere_Type",0.0],` +
	`UNIT["Meter",1.0]]`

// Layer describes a shapefile to write.
type Layer struct {
	Fields []shp.Field
	Shapes []shp.Shape
	Rows   [][]any
	Prj    string
	Cpg    string
	Type   shp.ShapeType
}

// Write creates name.shp with its sidecars in dir and returns the .shp path.
func Write(t testing.TB, dir, name string, l Layer) string {
	t.Helper()

	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, l.Type)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}

	if len(l.Fields) > 0 {
		if err := w.SetFields(l.Fields); err != nil {
			t.Fatalf("set fields: %v", err)
		}
	}
	for i, s := range l.Shapes {
		row := int(w.Write(s))
		if i >= len(l.Rows) {
			continue
		}
		for j, v := range l.Rows[i] {
			if v == nil {
				continue
			}
			if err := w.WriteAttribute(row, j, v); err != nil {
				t.Fatalf("write attribute %d/%d: %v", row, j, err)
			}
		}
	}
	w.Close()

	// go-shp names the table "<base>dbf", without the dot
	base := strings.TrimSuffix(path, ".shp")
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		t.Fatalf("rename dbf: %v", err)
	}
	if l.Prj != "" {
		writeFile(t, base+".prj", l.Prj)
	}
	if l.Cpg != "" {
		writeFile(t, base+".cpg", l.Cpg)
	}

	return path
}

// Point is a named location for Points.
type Point struct {
	Name string
	X, Y float64
}

// Points writes a point layer with a single NAME field.
func Points(t testing.TB, dir, name, prj string, pts ...Point) string {
	t.Helper()

	l := Layer{
		Type:   shp.POINT,
		Prj:    prj,
		Fields: []shp.Field{shp.StringField("NAME", 32)},
	}
	for _, p := range pts {
		l.Shapes = append(l.Shapes, &shp.Point{X: p.X, Y: p.Y})
		l.Rows = append(l.Rows, []any{p.Name})
	}

	return Write(t, dir, name, l)
}

// LogicalField builds a dBase logical (L) field, which go-shp has no constructor for.
func LogicalField(name string) shp.Field {
	f := shp.Field{Fieldtype: 'L', Size: 1}
	copy(f.Name[:], name)
	return f
}

func writeFile(t testing.TB, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
