package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/coinhunt/roomengine/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// EarthRadius matches the radius redis uses for GEODIST/GEORADIUS so every
// index backend agrees on distances.
const EarthRadius = 6372797.560856

// Limits accepted by redis GEOADD.
const (
	MaxLatitude  = 85.05112878
	MaxLongitude = 180.0
)

// MemberPrefix prefixes a coin id to form its index member name.
const MemberPrefix = "coin"

// ErrOutOfRange is returned when a projected position falls outside the
// valid longitude/latitude range.
var ErrOutOfRange = errors.New("projected position out of range")

// Projection maps integer world coordinates onto longitude/latitude by linear
// scale factors. X scales onto latitude and Y onto longitude.
type Projection struct {
	ScaleX float64
	ScaleY float64
}

// DefaultProjection scales both axes by 0.0001 degrees per unit.
var DefaultProjection = Projection{ScaleX: 0.0001, ScaleY: 0.0001}

// LonLat returns the geographic position of c.
func (p Projection) LonLat(c core.Coordinates) (lon, lat float64, err error) {
	lon = float64(c.Y) * p.ScaleY
	lat = float64(c.X) * p.ScaleX
	if math.Abs(lon) > MaxLongitude || math.Abs(lat) > MaxLatitude {
		return 0, 0, fmt.Errorf("%w: x=%d y=%d -> lon=%f lat=%f", ErrOutOfRange, c.X, c.Y, lon, lat)
	}
	return lon, lat, nil
}

// RadiusMeters converts a world-space radius into a great-circle radius that
// covers it on both axes.
func (p Projection) RadiusMeters(radius float64) float64 {
	scale := math.Max(math.Abs(p.ScaleX), math.Abs(p.ScaleY))
	return radius * scale * EarthRadius * math.Pi / 180
}

// MemberKey returns the index member name for a coin id.
func MemberKey(id int) string {
	return MemberPrefix + strconv.Itoa(id)
}

// ParseMemberKey extracts the coin id from a member name.
func ParseMemberKey(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, MemberPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Haversine returns the great-circle distance in meters between two positions.
func Haversine(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(a)))
}

// BoundingBox returns the lon/lat box enclosing a circle of radiusMeters.
func BoundingBox(lon, lat, radiusMeters float64) (minLon, minLat, maxLon, maxLat float64) {
	dLat := radiusMeters / EarthRadius * 180 / math.Pi
	cos := math.Cos(lat * math.Pi / 180)
	dLon := MaxLongitude
	if cos > 1e-12 {
		dLon = math.Min(MaxLongitude, dLat/cos)
	}
	return lon - dLon, lat - dLat, lon + dLon, lat + dLat
}

// Point returns a 2D EPSG:4326 point. NaN or infinite input is an error.
func Point(lon, lat float64) (geom.Point, error) {
	p, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: lon, Y: lat}, Type: geom.DimXY})
	if err != nil {
		return geom.Point{}, fmt.Errorf("point lon=%v lat=%v: %w", lon, lat, err)
	}
	return p, nil
}

// WebMercator projects an EPSG:4326 position into an EPSG:3857 point.
func WebMercator(lon, lat float64) (geom.Point, error) {
	x, y, _ := wgs84.EPSG().Transform(4326, 3857)(lon, lat, 0)
	p, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}, Type: geom.DimXY})
	if err != nil {
		return geom.Point{}, fmt.Errorf("web mercator lon=%v lat=%v: %w", lon, lat, err)
	}
	return p, nil
}

// WebMercatorWKB returns the WKB encoding of WebMercator(lon, lat).
func WebMercatorWKB(lon, lat float64) ([]byte, error) {
	p, err := WebMercator(lon, lat)
	if err != nil {
		return nil, err
	}
	return p.AsBinary(), nil
}
