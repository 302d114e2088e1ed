package shapefile

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square returns a closed ring; clockwise when cw is set.
func square(x, y, size float64, cw bool) []orb.Point {
	ring := []orb.Point{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}
	if cw {
		orb.Ring(ring).Reverse()
	}
	return ring
}

func TestPolygonsShellAndHole(t *testing.T) {
	g := polygons([][]orb.Point{
		square(0, 0, 10, true),
		square(2, 2, 2, false),
	})

	p, ok := g.(orb.Polygon)
	require.True(t, ok, "got %T", g)
	require.Len(t, p, 2)
	assert.Equal(t, orb.CCW, p[0].Orientation())
	assert.Equal(t, orb.CW, p[1].Orientation())
}

func TestPolygonsMultiple(t *testing.T) {
	g := polygons([][]orb.Point{
		square(0, 0, 10, true),
		square(20, 20, 10, true),
		square(22, 22, 2, false),
	})

	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok, "got %T", g)
	require.Len(t, mp, 2)
	assert.Len(t, mp[0], 1)
	assert.Len(t, mp[1], 2, "hole goes to the shell containing it")
	for _, p := range mp {
		assert.Equal(t, orb.CCW, p[0].Orientation())
	}
}

func TestPolygonsOrphanHole(t *testing.T) {
	g := polygons([][]orb.Point{
		square(0, 0, 10, true),
		square(50, 50, 2, false),
	})

	mp, ok := g.(orb.MultiPolygon)
	require.True(t, ok, "got %T", g)
	require.Len(t, mp, 2)
	assert.Equal(t, orb.CCW, mp[1][0].Orientation())
}

func TestPolygonsCounterClockwiseOnly(t *testing.T) {
	g := polygons([][]orb.Point{square(0, 0, 10, false)})

	p, ok := g.(orb.Polygon)
	require.True(t, ok, "got %T", g)
	require.Len(t, p, 1)
	assert.Equal(t, orb.CCW, p[0].Orientation())
}

func TestPolygonsUnclosedRing(t *testing.T) {
	open := square(0, 0, 10, true)
	g := polygons([][]orb.Point{open[:4]})

	p, ok := g.(orb.Polygon)
	require.True(t, ok, "got %T", g)
	assert.Len(t, p[0], 5)
	assert.Equal(t, p[0][0], p[0][4])
}

func TestPolygonsDegenerate(t *testing.T) {
	assert.Nil(t, polygons(nil))
	assert.Nil(t, polygons([][]orb.Point{{{0, 0}, {1, 1}}}))
}

func TestGeometry(t *testing.T) {
	line := shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}})
	multiLine := shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 1, Y: 1}},
		{{X: 2, Y: 2}, {X: 3, Y: 3}},
	})

	tests := []struct {
		name  string
		shape shp.Shape
		want  orb.Geometry
	}{
		{
			name:  "null",
			shape: &shp.Null{},
			want:  nil,
		},
		{
			name:  "point",
			shape: &shp.Point{X: 1, Y: 2},
			want:  orb.Point{1, 2},
		},
		{
			name:  "pointz drops z",
			shape: &shp.PointZ{X: 1, Y: 2, Z: 3},
			want:  orb.Point{1, 2},
		},
		{
			name:  "multipoint",
			shape: &shp.MultiPoint{NumPoints: 2, Points: []shp.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}},
			want:  orb.MultiPoint{{1, 2}, {3, 4}},
		},
		{
			name:  "single part polyline",
			shape: line,
			want:  orb.LineString{{0, 0}, {1, 1}},
		},
		{
			name:  "multi part polyline",
			shape: multiLine,
			want:  orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Geometry(tt.shape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGeometryUnsupported(t *testing.T) {
	_, err := Geometry(&shp.MultiPatch{})
	assert.ErrorIs(t, err, ErrUnsupportedShape)
}
