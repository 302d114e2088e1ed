package shapefile

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// polygons groups shapefile rings into polygons. Shapefiles store shells
// clockwise and holes counter-clockwise; every hole belongs to the first
// shell containing it. The result uses GeoJSON winding: shells
// counter-clockwise, holes clockwise.
func polygons(parts [][]orb.Point) orb.Geometry {
	var shells, holes []orb.Ring
	for _, part := range parts {
		ring := closeRing(part)
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CW {
			shells = append(shells, ring)
		} else {
			holes = append(holes, ring)
		}
	}

	// every ring counter-clockwise: the writer ignored the winding rule
	if len(shells) == 0 {
		shells, holes = holes, nil
	}
	if len(shells) == 0 {
		return nil
	}

	polys := make(orb.MultiPolygon, len(shells))
	for i, shell := range shells {
		polys[i] = orb.Polygon{shell}
	}

	for _, hole := range holes {
		owner := -1
		for i, shell := range shells {
			if containsRing(shell, hole) {
				owner = i
				break
			}
		}
		if owner < 0 {
			// orphan holes become shells of their own
			polys = append(polys, orb.Polygon{hole})
			continue
		}
		polys[owner] = append(polys[owner], hole)
	}

	for _, poly := range polys {
		for i, ring := range poly {
			wantCCW := i == 0
			if (ring.Orientation() == orb.CCW) != wantCCW {
				ring.Reverse()
			}
		}
	}

	if len(polys) == 1 {
		return polys[0]
	}
	return polys
}

// containsRing tests the first hole vertex not on the shell boundary.
func containsRing(shell, hole orb.Ring) bool {
	if !shell.Bound().Contains(hole[0]) {
		return false
	}
	for _, p := range hole {
		if onBoundary(shell, p) {
			continue
		}
		return planar.RingContains(shell, p)
	}
	return true
}

func onBoundary(r orb.Ring, p orb.Point) bool {
	for _, q := range r {
		if q == p {
			return true
		}
	}
	return false
}

func closeRing(pts []orb.Point) orb.Ring {
	ring := orb.Ring(pts)
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}
