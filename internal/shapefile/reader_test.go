package shapefile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/woozymasta/shp2geojson/internal/geo"
	"github.com/woozymasta/shp2geojson/internal/shapefile/shptest"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/traditionalchinese"
)

func TestReadAttributes(t *testing.T) {
	dir := t.TempDir()
	path := shptest.Write(t, dir, "places", shptest.Layer{
		Type: shp.POINT,
		Fields: []shp.Field{
			shp.StringField("NAME", 20),
			shp.NumberField("POP", 10),
			shp.FloatField("AREA", 12, 3),
			shp.DateField("FOUNDED"),
			shptest.LogicalField("CAPITAL"),
		},
		Shapes: []shp.Shape{
			&shp.Point{X: 121.5, Y: 25.05},
			&shp.Point{X: 120.3, Y: 22.6},
		},
		Rows: [][]any{
			{"Taipei", 2500000, 271.8, "18840101", "T"},
			{"Kaohsiung", nil, nil, nil, "F"},
		},
	})

	ds, err := Read(path, ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "places", ds.Name)
	assert.Nil(t, ds.CRS)
	require.Equal(t, 2, ds.Len())

	first := ds.Features.Features[0]
	assert.Equal(t, orb.Point{121.5, 25.05}, first.Geometry)
	assert.Equal(t, "Taipei", first.Properties["NAME"])
	assert.Equal(t, int64(2500000), first.Properties["POP"])
	assert.InDelta(t, 271.8, first.Properties["AREA"], 1e-9)
	assert.Equal(t, "1884-01-01", first.Properties["FOUNDED"])
	assert.Equal(t, true, first.Properties["CAPITAL"])

	second := ds.Features.Features[1]
	assert.Equal(t, "Kaohsiung", second.Properties["NAME"])
	assert.Nil(t, second.Properties["POP"])
	assert.Nil(t, second.Properties["AREA"])
	assert.Nil(t, second.Properties["FOUNDED"])
	assert.Equal(t, false, second.Properties["CAPITAL"])
}

func TestReadPrj(t *testing.T) {
	tests := []struct {
		name string
		prj  string
		want int
	}{
		{name: "twd97", prj: shptest.TWD97, want: 3826},
		{name: "wgs84", prj: shptest.WGS84, want: 4326},
		{name: "web mercator", prj: shptest.WebMercator, want: 3857},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := shptest.Points(t, t.TempDir(), "pts", tt.prj, shptest.Point{Name: "a", X: 1, Y: 2})

			ds, err := Read(path, ReadOptions{})
			require.NoError(t, err)
			require.NotNil(t, ds.CRS)
			assert.Equal(t, tt.want, ds.CRS.Code)
		})
	}
}

func TestReadInvalidPrj(t *testing.T) {
	path := shptest.Points(t, t.TempDir(), "pts", `PROJCS["broken"`, shptest.Point{Name: "a"})

	_, err := Read(path, ReadOptions{})
	assert.ErrorIs(t, err, geo.ErrInvalidWKT)
}

func TestReadCodePage(t *testing.T) {
	big5, err := traditionalchinese.Big5.NewEncoder().String("臺北市")
	require.NoError(t, err)

	path := shptest.Write(t, t.TempDir(), "cities", shptest.Layer{
		Type:   shp.POINT,
		Cpg:    "950",
		Fields: []shp.Field{shp.StringField("NAME", 20)},
		Shapes: []shp.Shape{&shp.Point{X: 121.5, Y: 25.05}},
		Rows:   [][]any{{big5}},
	})

	ds, err := Read(path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "臺北市", ds.Features.Features[0].Properties["NAME"])
}

func TestReadFallbackEncoding(t *testing.T) {
	big5, err := traditionalchinese.Big5.NewEncoder().String("高雄")
	require.NoError(t, err)

	path := shptest.Write(t, t.TempDir(), "cities", shptest.Layer{
		Type:   shp.POINT,
		Fields: []shp.Field{shp.StringField("NAME", 20)},
		Shapes: []shp.Shape{&shp.Point{X: 120.3, Y: 22.6}},
		Rows:   [][]any{{big5}},
	})

	ds, err := Read(path, ReadOptions{Encoding: "big5"})
	require.NoError(t, err)
	assert.Equal(t, "高雄", ds.Features.Features[0].Properties["NAME"])
}

func TestReadWithoutDBF(t *testing.T) {
	dir := t.TempDir()
	path := shptest.Points(t, dir, "pts", "", shptest.Point{Name: "a", X: 3, Y: 4})
	require.NoError(t, os.Remove(filepath.Join(dir, "pts.dbf")))

	ds, err := Read(path, ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Empty(t, ds.Features.Features[0].Properties)
	assert.Equal(t, orb.Point{3, 4}, ds.Features.Features[0].Geometry)
}

func TestReadExtensionless(t *testing.T) {
	dir := t.TempDir()
	shptest.Points(t, dir, "pts", "", shptest.Point{Name: "a", X: 3, Y: 4})

	ds, err := Read(filepath.Join(dir, "pts"), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.shp"), ReadOptions{})
	assert.Error(t, err)
}

func TestReadPolygonLayer(t *testing.T) {
	shell := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{shell, hole}))

	path := shptest.Write(t, t.TempDir(), "parcels", shptest.Layer{
		Type:   shp.POLYGON,
		Fields: []shp.Field{shp.NumberField("ID", 5)},
		Shapes: []shp.Shape{&poly},
		Rows:   [][]any{{7}},
	})

	ds, err := Read(path, ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	p, ok := ds.Features.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok, "got %T", ds.Features.Features[0].Geometry)
	require.Len(t, p, 2)
	assert.Equal(t, orb.CCW, p[0].Orientation())
	assert.Equal(t, orb.CW, p[1].Orientation())
	assert.Equal(t, int64(7), ds.Features.Features[0].Properties["ID"])
}

func TestReadRejectsPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "short missing name", path: "ab", want: os.ErrNotExist},
		{name: "missing in dir", path: filepath.Join(dir, "x"), want: os.ErrNotExist},
		{name: "other extension", path: filepath.Join(dir, "notes.txt"), want: ErrNotShapefile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.path, ReadOptions{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadUpperCaseExtensions(t *testing.T) {
	dir := t.TempDir()
	shptest.Points(t, dir, "PTS", shptest.TWD97, shptest.Point{Name: "upper", X: 250000, Y: 0})
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj"} {
		require.NoError(t, os.Rename(filepath.Join(dir, "PTS"+ext), filepath.Join(dir, "PTS"+strings.ToUpper(ext))))
	}

	ds, err := Read(filepath.Join(dir, "PTS.SHP"), ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "upper", ds.Features.Features[0].Properties["NAME"])
	require.NotNil(t, ds.CRS)
	assert.Equal(t, 3826, ds.CRS.Code)
}

func TestReadCorruptRecord(t *testing.T) {
	line := shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}})
	path := shptest.Write(t, t.TempDir(), "roads", shptest.Layer{
		Type:   shp.POLYLINE,
		Fields: []shp.Field{shp.NumberField("ID", 5)},
		Shapes: []shp.Shape{line},
		Rows:   [][]any{{1}},
	})

	// 100 byte file header, 8 byte record header, shape type, bounding box
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(data[144:148], []byte{0xff, 0xff, 0xff, 0xff})
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = Read(path, ReadOptions{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReadCorruptTable(t *testing.T) {
	dir := t.TempDir()
	path := shptest.Points(t, dir, "pts", "", shptest.Point{Name: "a", X: 1, Y: 2})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pts.dbf"), []byte("not a dbf"), 0644))

	_, err := Read(path, ReadOptions{})
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReadShortTable(t *testing.T) {
	dir := t.TempDir()
	path := shptest.Points(t, dir, "pts", "",
		shptest.Point{Name: "a", X: 1, Y: 2},
		shptest.Point{Name: "b", X: 3, Y: 4},
	)

	// drop the second row: deletion flag plus the 32 byte NAME cell
	dbf := filepath.Join(dir, "pts.dbf")
	data, err := os.ReadFile(dbf)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dbf, data[:len(data)-33], 0644))

	_, err = Read(path, ReadOptions{})
	assert.Error(t, err)
}
