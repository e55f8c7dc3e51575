// Package region resolves coordinates to region codes using Census
// TIGER/Line shapefiles (ZCTA5 boundaries by default). Clinics with
// coordinates get their region from geometry; clinics without fall back
// to the postal code their listings report.
package region

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// Region is one named boundary: a code plus its rings.
type Region struct {
	Code  string
	Name  string
	rings [][]float64 // flat XY ring coords, outer rings and holes alike
	// Bounding box for the cheap pre-test.
	minX, minY, maxX, maxY float64
}

// addRing appends a flat XY ring and grows the bounding box over it.
func (r *Region) addRing(flat []float64) {
	empty := len(r.rings) == 0
	for i := 0; i+1 < len(flat); i += 2 {
		x, y := flat[i], flat[i+1]
		if empty || x < r.minX {
			r.minX = x
		}
		if empty || x > r.maxX {
			r.maxX = x
		}
		if empty || y < r.minY {
			r.minY = y
		}
		if empty || y > r.maxY {
			r.maxY = y
		}
		empty = false
	}
	r.rings = append(r.rings, flat)
}

// Index holds loaded regions and answers point lookups.
type Index struct {
	regions []Region
}

// LoadShapefile reads polygon records from a shapefile, taking each
// region's code from the named attribute field (case-insensitive).
func LoadShapefile(path, codeField string) (*Index, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx, nameIdx := -1, -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, codeField) {
			fieldIdx = i
		}
		// TIGER files carry a NAME attribute; keep it when present.
		if strings.EqualFold(name, "NAME") {
			nameIdx = i
		}
	}
	if fieldIdx < 0 {
		return nil, eris.Errorf("region: field %q not in shapefile %s", codeField, path)
	}

	idx := &Index{}
	skipped := 0
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || len(poly.Points) == 0 {
			skipped++
			continue
		}

		code := strings.TrimSpace(strings.TrimRight(reader.Attribute(fieldIdx), "\x00"))
		if code == "" {
			skipped++
			continue
		}

		region := Region{Code: code}
		if nameIdx >= 0 {
			region.Name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}
		for _, ring := range rings(poly) {
			region.addRing(ring)
		}
		idx.regions = append(idx.regions, region)
	}

	if skipped > 0 {
		zap.L().Debug("region: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped))
	}

	zap.L().Info("region: shapefile loaded",
		zap.String("path", path),
		zap.Int("regions", len(idx.regions)))
	return idx, nil
}

// NewIndex builds an index directly from regions; used by tests and by
// callers with geometry from elsewhere.
func NewIndex(regions []Region) *Index {
	return &Index{regions: regions}
}

// MakeRegion builds a Region from rings of [x, y] coordinate pairs.
func MakeRegion(code string, ringCoords ...[][2]float64) Region {
	r := Region{Code: code}
	for _, rc := range ringCoords {
		flat := make([]float64, 0, len(rc)*2)
		for _, pt := range rc {
			flat = append(flat, pt[0], pt[1])
		}
		r.addRing(flat)
	}
	return r
}

// Locate returns the code of the region containing the point. Shapefile
// coordinates are (lon, lat). A point inside a hole ring is outside the
// region by ring parity.
func (ix *Index) Locate(lat, lon float64) (string, bool) {
	pt := geom.Coord{lon, lat}
	for _, r := range ix.regions {
		if lon < r.minX || lon > r.maxX || lat < r.minY || lat > r.maxY {
			continue
		}
		inside := 0
		for _, ring := range r.rings {
			if xy.IsPointInRing(geom.XY, pt, ring) {
				inside++
			}
		}
		if inside%2 == 1 {
			return r.Code, true
		}
	}
	return "", false
}

// Regions returns the loaded regions, for persistence.
func (ix *Index) Regions() []Region {
	return ix.regions
}

// Codes returns every loaded region code, for diagnostics.
func (ix *Index) Codes() []string {
	out := make([]string, 0, len(ix.regions))
	for _, r := range ix.regions {
		out = append(out, r.Code)
	}
	return out
}

// rings splits a shapefile polygon's parts into flat coordinate rings.
func rings(poly *shp.Polygon) [][]float64 {
	if poly.NumParts == 0 {
		return [][]float64{flatten(poly.Points)}
	}

	var out [][]float64
	for i := int32(0); i < poly.NumParts; i++ {
		start := poly.Parts[i]
		end := int32(len(poly.Points))
		if i+1 < poly.NumParts {
			end = poly.Parts[i+1]
		}
		out = append(out, flatten(poly.Points[start:end]))
	}
	return out
}

func flatten(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
