package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/pebbe/proj/v5"
)

// Transformer reprojects coordinates between two systems. PROJ picks the
// operation from the two definitions, datum shifts and units included.
type Transformer struct {
	src, dst *CRS
	ctx      *proj.Context
	pj       *proj.PJ
}

// NewTransformer creates the operation from src to dst. Close must be called
// to release the PROJ handles.
func NewTransformer(src, dst *CRS) (*Transformer, error) {
	if src == nil || dst == nil {
		return nil, fmt.Errorf("transform %s -> %s: %w", src, dst, ErrUnknownCRS)
	}

	ctx := proj.NewContext()
	pj, err := ctx.CreateCRS2CRS(src.Definition(), dst.Definition())
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("create transformation %s -> %s: %w", src, dst, err)
	}

	return &Transformer{src: src, dst: dst, ctx: ctx, pj: pj}, nil
}

// Close releases the transformation.
func (t *Transformer) Close() {
	if t.pj != nil {
		t.pj.Close()
		t.pj = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
}

// Point reprojects a single coordinate.
func (t *Transformer) Point(p orb.Point) (orb.Point, error) {
	x, y := t.in(p)
	u, v, _, _, err := t.pj.Trans(proj.Fwd, x, y, 0, 0)
	if err != nil {
		return p, fmt.Errorf("reproject %v: %w", p, err)
	}
	if isBad(u) || isBad(v) {
		return p, fmt.Errorf("reproject %v: coordinate out of range", p)
	}

	return t.out(u, v), nil
}

// Geometry reprojects g in place and returns it. All coordinates of the
// geometry go through PROJ in one call.
func (t *Transformer) Geometry(g orb.Geometry) (orb.Geometry, error) {
	if g == nil {
		return nil, nil
	}

	var xs, ys []float64
	g = project.Geometry(g, func(p orb.Point) orb.Point {
		x, y := t.in(p)
		xs = append(xs, x)
		ys = append(ys, y)
		return p
	})
	if len(xs) == 0 {
		return g, nil
	}

	us, vs, _, _, err := t.pj.TransSlice(proj.Fwd, xs, ys, nil, nil)
	if err != nil {
		return g, fmt.Errorf("reproject %d coordinates: %w", len(xs), err)
	}
	for i := range us {
		if isBad(us[i]) || isBad(vs[i]) {
			return g, fmt.Errorf("reproject %v: coordinate out of range", orb.Point{xs[i], ys[i]})
		}
	}

	i := 0
	return project.Geometry(g, func(orb.Point) orb.Point {
		q := t.out(us[i], vs[i])
		i++
		return q
	}), nil
}

// Dataset reprojects every feature and retags the dataset with the target system.
func (t *Transformer) Dataset(ds *Dataset) error {
	for i, f := range ds.Features.Features {
		g, err := t.Geometry(f.Geometry)
		if err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		f.Geometry = g
	}
	ds.CRS = t.dst

	return nil
}

// in orders a shapefile x/y pair the way the source system declares its axes.
func (t *Transformer) in(p orb.Point) (float64, float64) {
	if t.src.northFirst {
		return p[1], p[0]
	}
	return p[0], p[1]
}

func (t *Transformer) out(u, v float64) orb.Point {
	if t.dst.northFirst {
		return orb.Point{v, u}
	}
	return orb.Point{u, v}
}

func isBad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v == math.MaxFloat64
}
