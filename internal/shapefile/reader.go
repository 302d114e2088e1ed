// Package shapefile reads ESRI shapefiles into geo datasets.
package shapefile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/shp2geojson/internal/geo"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
)

var (
	// ErrUnsupportedShape is returned for shape types without a GeoJSON equivalent.
	ErrUnsupportedShape = errors.New("unsupported shape type")

	// ErrNotShapefile is returned for paths that do not name a .shp file.
	ErrNotShapefile = errors.New("not a .shp file")

	// ErrCorrupt is returned when record headers or the .dbf layout do not add up.
	ErrCorrupt = errors.New("corrupt shapefile")
)

// ReadOptions configure how sidecar files are interpreted.
type ReadOptions struct {
	// Registry resolves the .prj content; the built-in registry when nil.
	Registry *geo.Registry

	// Encoding applies to DBF text when no .cpg file names one.
	Encoding string
}

// Read loads the .shp geometry, .dbf attributes, .prj system and .cpg encoding.
// A missing .dbf yields features without properties and a missing .prj yields
// a dataset with a nil CRS. Sidecars are found in lower or upper case.
func Read(path string, opts ReadOptions) (*geo.Dataset, error) {
	if opts.Registry == nil {
		opts.Registry = geo.NewRegistry()
	}

	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))

	ds := geo.NewDataset(filepath.Base(base))
	if ds.CRS, err = readPrj(base, opts.Registry); err != nil {
		return nil, err
	}

	shpFile, err := openBuffered(path)
	if err != nil {
		return nil, err
	}

	var (
		table = blankTable()
		dec   *encoding.Decoder
	)
	dbfPath, hasDBF := sibling(base, ".dbf")
	if hasDBF {
		if table, err = openBuffered(dbfPath); err != nil {
			_ = shpFile.Close()
			return nil, err
		}
		var name string
		if dec, name, err = openDecoder(base, opts.Encoding); err != nil {
			_ = shpFile.Close()
			_ = table.Close()
			return nil, err
		}
		log.Debug().Str("path", dbfPath).Str("encoding", name).Msg("Reading attributes")
	} else {
		log.Warn().Str("path", path).Msg("No .dbf file found, features will have no properties")
	}

	if err := readRecords(ds, shpFile, table, hasDBF, dec); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	log.Debug().
		Str("path", path).
		Int("features", ds.Len()).
		Msg("Shapefile loaded")

	return ds, nil
}

// readRecords walks the .shp records alongside the .dbf rows. go-shp trusts
// counts taken from the file and panics on nonsense ones, which is turned
// into ErrCorrupt here.
func readRecords(ds *geo.Dataset, shpFile, table io.ReadCloser, hasDBF bool, dec *encoding.Decoder) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = shpFile.Close()
			_ = table.Close()
			err = fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	r := shp.SequentialReaderFromExt(shpFile, table)
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			log.Error().Err(closeErr).Str("dataset", ds.Name).Msg("Failed to close shapefile")
		}
	}()

	var attrs *attributeReader
	if hasDBF {
		attrs = newAttributeReader(r, dec)
	}

	for r.Next() {
		n, shape := r.Shape()

		g, err := Geometry(shape)
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}

		f := geojson.NewFeature(g)
		if attrs != nil {
			f.Properties = attrs.row()
		}

		ds.Features.Append(f)
	}

	return r.Err()
}

// resolvePath accepts name.shp in any case, or a path without extension
// when name.shp exists beside it.
func resolvePath(path string) (string, error) {
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".shp") {
		return path, nil
	}
	if p, ok := sibling(path, ".shp"); ok {
		return p, nil
	}
	if ext == "" {
		return path + ".shp", nil
	}

	return "", fmt.Errorf("%s: %w", path, ErrNotShapefile)
}

// sibling finds base+ext with the extension in lower or upper case.
func sibling(base, ext string) (string, bool) {
	for _, p := range []string{base + ext, base + strings.ToUpper(ext)} {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

type bufferedFile struct {
	*bufio.Reader
	f *os.File
}

func (b bufferedFile) Close() error {
	return b.f.Close()
}

func openBuffered(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return bufferedFile{Reader: bufio.NewReader(f), f: f}, nil
}

// blankTable stands in for a missing .dbf: a dBase header without fields
// followed by one-byte rows marked as not deleted.
func blankTable() io.ReadCloser {
	header := make([]byte, 33)
	header[0] = 0x03
	binary.LittleEndian.PutUint16(header[8:], 33)
	binary.LittleEndian.PutUint16(header[10:], 1)
	header[32] = 0x0d

	return io.NopCloser(io.MultiReader(bytes.NewReader(header), blankRows{}))
}

type blankRows struct{}

func (blankRows) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = ' '
	}
	return len(p), nil
}

func readPrj(base string, reg *geo.Registry) (*geo.CRS, error) {
	p, ok := sibling(base, ".prj")
	if !ok {
		return nil, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	crs, err := geo.ParseWKT(string(data), reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
	}

	return crs, nil
}

// Geometry converts a shape record into an orb geometry.
// Null shapes return nil. Z and M values are dropped.
func Geometry(s shp.Shape) (orb.Geometry, error) {
	switch s := s.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointM:
		return orb.Point{s.X, s.Y}, nil
	case *shp.MultiPoint:
		return multiPoint(s.Points), nil
	case *shp.MultiPointZ:
		return multiPoint(s.Points), nil
	case *shp.MultiPointM:
		return multiPoint(s.Points), nil
	case *shp.PolyLine:
		return lines(splitParts(s.Parts, s.Points)), nil
	case *shp.PolyLineZ:
		return lines(splitParts(s.Parts, s.Points)), nil
	case *shp.PolyLineM:
		return lines(splitParts(s.Parts, s.Points)), nil
	case *shp.Polygon:
		return polygons(splitParts(s.Parts, s.Points)), nil
	case *shp.PolygonZ:
		return polygons(splitParts(s.Parts, s.Points)), nil
	case *shp.PolygonM:
		return polygons(splitParts(s.Parts, s.Points)), nil
	}

	return nil, fmt.Errorf("%T: %w", s, ErrUnsupportedShape)
}

func multiPoint(pts []shp.Point) orb.MultiPoint {
	mp := make(orb.MultiPoint, len(pts))
	for i, p := range pts {
		mp[i] = orb.Point{p.X, p.Y}
	}
	return mp
}

// splitParts cuts the flat point array at the part start offsets.
func splitParts(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || int(end) > len(pts) {
			continue
		}

		part := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(parts [][]orb.Point) orb.Geometry {
	if len(parts) == 0 {
		return nil
	}
	if len(parts) == 1 {
		return orb.LineString(parts[0])
	}

	mls := make(orb.MultiLineString, len(parts))
	for i, p := range parts {
		mls[i] = orb.LineString(p)
	}
	return mls
}
