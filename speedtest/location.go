package speedtest

import "math"

const earthRadiusKm = 6372.8

// Point is a geographic coordinate pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the great-circle distance between p1 and p2 in
// kilometers, using the haversine formula on a sphere. Inputs are assumed
// to be valid coordinates.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * math.Pi / 180.0
	dLon := (p2.Lon - p1.Lon) * math.Pi / 180.0
	lat1 := p1.Lat * math.Pi / 180.0
	lat2 := p2.Lat * math.Pi / 180.0

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	// the cos product is grouped so the expression commutes exactly when
	// the points are swapped
	a := sinLat*sinLat + sinLon*sinLon*(math.Cos(lat1)*math.Cos(lat2))

	// Floating-point drift can push the argument past 1 for antipodal
	// points, which would make Asin return NaN.
	arg := math.Sqrt(a)
	if arg > 1 {
		arg = 1
	}
	return 2 * earthRadiusKm * math.Asin(arg)
}
