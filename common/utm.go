package common

import (
	"fmt"
	"math"
)

// WGS84 ellipsoid and UTM projection constants
const (
	wgs84A        = 6378137.0
	wgs84F        = 1 / 298.257223563
	utmK0         = 0.9996
	utmFalseEast  = 500000.0
	utmFalseNorth = 10000000.0
)

// UTMZone returns the UTM zone number of the point, including the Norway and Svalbard exceptions
func UTMZone(lon, lat float64) int {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	lon -= 180

	if lat >= 56 && lat < 64 && lon >= 3 && lon < 12 {
		return 32
	}
	if lat >= 72 && lat <= 84 && lon >= 0 {
		switch {
		case lon < 9:
			return 31
		case lon < 21:
			return 33
		case lon < 33:
			return 35
		case lon < 42:
			return 37
		}
	}
	return int((lon+180)/6) + 1
}

// UTMEPSG returns the EPSG code of the WGS84/UTM zone (326xx in the north, 327xx in the south)
func UTMEPSG(zone int, lat float64) int {
	if lat < 0 {
		return 32700 + zone
	}
	return 32600 + zone
}

// LonLatToUTM projects the WGS84 point in its UTM zone.
// Returns the easting, northing and EPSG code of the zone
func LonLatToUTM(lon, lat float64) (float64, float64, int, error) {
	if lat < -80 || lat > 84 {
		return 0, 0, 0, fmt.Errorf("LonLatToUTM: latitude %f outside UTM range [-80, 84]", lat)
	}
	if lon < -180 || lon > 180 {
		return 0, 0, 0, fmt.Errorf("LonLatToUTM: longitude %f outside [-180, 180]", lon)
	}
	zone := UTMZone(lon, lat)
	lon0 := float64((zone-1)*6-180+3) * math.Pi / 180

	e2 := wgs84F * (2 - wgs84F)
	e4 := e2 * e2
	e6 := e4 * e2
	ep2 := e2 / (1 - e2)

	phi := lat * math.Pi / 180
	lambda := lon * math.Pi / 180
	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := wgs84A / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	dl := lambda - lon0
	// Keep the longitude difference in [-pi, pi] around the antimeridian
	if dl > math.Pi {
		dl -= 2 * math.Pi
	} else if dl < -math.Pi {
		dl += 2 * math.Pi
	}
	a := cosPhi * dl

	m := wgs84A * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))

	a2 := a * a
	x := utmK0*n*(a+(1-t+c)*a2*a/6+(5-18*t+t*t+72*c-58*ep2)*a2*a2*a/120) + utmFalseEast
	y := utmK0 * (m + n*tanPhi*(a2/2+(5-t+9*c+4*c*c)*a2*a2/24+(61-58*t+t*t+600*c-330*ep2)*a2*a2*a2/720))
	if lat < 0 {
		y += utmFalseNorth
	}
	return x, y, UTMEPSG(zone, lat), nil
}
