// Package processor converts shapefiles into GeoJSON in WGS84.
package processor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/shp2geojson/internal/geo"
	"github.com/woozymasta/shp2geojson/internal/shapefile"

	"github.com/google/renameio"
	"github.com/rs/zerolog/log"
)

// OutputExt is appended to the input base name.
const OutputExt = ".geojson"

// Conversion stages reported by ConversionError.
const (
	StageRead      = "read"
	StageCRS       = "crs"
	StageReproject = "reproject"
	StageEncode    = "encode"
	StageWrite     = "write"
)

// ConversionError is the single failure type of Convert.
type ConversionError struct {
	Err   error
	Stage string
	Path  string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Options tune a single conversion.
type Options struct {
	// Registry resolves .prj files; the built-in registry when nil.
	Registry *geo.Registry

	// AssumedCRS is assigned when the input declares no system.
	AssumedCRS *geo.CRS

	// Output overrides the derived output path.
	Output string

	// Encoding is the DBF fallback encoding.
	Encoding string

	Marshal geo.MarshalOptions
}

// Result describes a finished conversion.
type Result struct {
	SourceCRS   *geo.CRS
	Input       string
	Output      string
	Features    int
	Assumed     bool
	Reprojected bool
}

// OutputPath replaces the input extension with .geojson.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + OutputExt
}

// Convert reads input, reprojects it to WGS84 when needed and writes GeoJSON.
// Any failure is returned as *ConversionError and leaves existing output untouched.
func Convert(input string, opts Options) (*Result, error) {
	if opts.Registry == nil {
		opts.Registry = geo.NewRegistry()
	}

	res := &Result{Input: input, Output: opts.Output}
	if res.Output == "" {
		res.Output = OutputPath(input)
	}

	log.Info().Str("path", input).Msg("Reading shapefile")

	ds, err := shapefile.Read(input, shapefile.ReadOptions{
		Registry: opts.Registry,
		Encoding: opts.Encoding,
	})
	if err != nil {
		return nil, &ConversionError{Stage: StageRead, Path: input, Err: err}
	}
	res.Features = ds.Len()

	if ds.CRS == nil {
		if opts.AssumedCRS == nil {
			return nil, &ConversionError{Stage: StageCRS, Path: input, Err: geo.ErrUnknownCRS}
		}
		log.Warn().
			Str("path", input).
			Str("crs", opts.AssumedCRS.String()).
			Msg("CRS not found in shapefile, assuming default")
		ds.CRS = opts.AssumedCRS
		res.Assumed = true
	}
	res.SourceCRS = ds.CRS

	log.Info().
		Str("crs", ds.CRS.String()).
		Str("name", ds.CRS.Name).
		Int("features", ds.Len()).
		Msg("Source CRS")

	target, err := opts.Registry.Lookup(geo.WGS84Code)
	if err != nil {
		return nil, &ConversionError{Stage: StageCRS, Path: input, Err: err}
	}

	if !ds.CRS.Equal(target) {
		log.Info().
			Str("from", ds.CRS.String()).
			Str("to", target.String()).
			Msg("Reprojecting")

		if err := reproject(ds, target); err != nil {
			return nil, &ConversionError{Stage: StageReproject, Path: input, Err: err}
		}
		res.Reprojected = true
	} else {
		ds.CRS = target
	}

	data, err := geo.MarshalGeoJSON(ds, opts.Marshal)
	if err != nil {
		return nil, &ConversionError{Stage: StageEncode, Path: input, Err: err}
	}

	log.Info().Str("path", res.Output).Int("bytes", len(data)).Msg("Saving GeoJSON")

	if err := saveGeoJSON(res.Output, data); err != nil {
		return nil, &ConversionError{Stage: StageWrite, Path: res.Output, Err: err}
	}

	return res, nil
}

func reproject(ds *geo.Dataset, target *geo.CRS) error {
	t, err := geo.NewTransformer(ds.CRS, target)
	if err != nil {
		return err
	}
	defer t.Close()

	return t.Dataset(ds)
}

// saveGeoJSON writes through a temp file in the target directory and renames
// it over path, so a failed write never leaves a truncated file behind.
func saveGeoJSON(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	t, err := renameio.TempFile(dir, path)
	if err != nil {
		return err
	}
	defer func() {
		if cleanupErr := t.Cleanup(); cleanupErr != nil {
			log.Debug().Err(cleanupErr).Str("path", path).Msg("Temp file cleanup")
		}
	}()

	if err := t.Chmod(0644); err != nil {
		return err
	}

	w := bufio.NewWriter(t)
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	return t.CloseAtomicallyReplace()
}
