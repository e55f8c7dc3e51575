package region

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

const srid = 4326

// WKB encodes the region's rings as an EWKB polygon for storage.
func (r Region) WKB() ([]byte, error) {
	poly := geom.NewPolygon(geom.XY).SetSRID(srid)
	for _, ring := range r.rings {
		lr := geom.NewLinearRingFlat(geom.XY, append([]float64(nil), ring...))
		if err := poly.Push(lr); err != nil {
			return nil, eris.Wrapf(err, "region: build polygon for %s", r.Code)
		}
	}
	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "region: encode %s", r.Code)
	}
	return data, nil
}

// FromWKB decodes a stored EWKB polygon back into a Region.
func FromWKB(code, name string, data []byte) (Region, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Region{}, eris.Wrapf(err, "region: decode %s", code)
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return Region{}, eris.Errorf("region: %s is not a polygon", code)
	}

	r := Region{Code: code, Name: name}
	for i := 0; i < poly.NumLinearRings(); i++ {
		flat := append([]float64(nil), poly.LinearRing(i).FlatCoords()...)
		r.addRing(flat)
	}
	return r, nil
}
