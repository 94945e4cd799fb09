// Package polyline implements the encoded polyline algorithm used by Google Maps,
// OpenRouteService (precision 5) and OSRM/Valhalla (precision 6).
// The format is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"
)

// ErrMalformed is returned when an encoded string ends in the middle of a value
// or contains bytes outside the encoding alphabet.
var ErrMalformed = errors.New("malformed encoded polyline")

// Supported precisions.
const (
	Precision5 = 5
	Precision6 = 6
)

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Decode5 decodes a precision-5 polyline.
func Decode5(encoded string) ([]Coordinate, error) {
	return Decode(encoded, Precision5)
}

// Encode5 encodes coordinates as a precision-5 polyline.
func Encode5(coords []Coordinate) string {
	return Encode(coords, Precision5)
}

// Decode decodes an encoded polyline with the given decimal precision.
// An empty string decodes to a nil slice.
func Decode(encoded string, precision int) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	factor := math.Pow10(precision)
	coords := make([]Coordinate, 0, len(encoded)/4)

	var lat, lon int64
	for i := 0; i < len(encoded); {
		dLat, next, err := readValue(encoded, i)
		if err != nil {
			return nil, err
		}
		dLon, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		i = next

		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{
			Lat: float64(lat) / factor,
			Lon: float64(lon) / factor,
		})
	}

	return coords, nil
}

// readValue reads one zig-zag varint starting at index i.
// It returns the value and the index of the next unread byte.
func readValue(encoded string, i int) (int64, int, error) {
	var result int64
	var shift uint

	for {
		if i >= len(encoded) {
			return 0, i, ErrMalformed
		}
		b := int64(encoded[i]) - 63
		i++
		if b < 0 || b > 0x3f {
			return 0, i, ErrMalformed
		}
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
		if shift > 60 {
			return 0, i, ErrMalformed
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), i, nil
	}
	return result >> 1, i, nil
}

// Encode encodes coordinates with the given decimal precision.
func Encode(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	buf := make([]byte, 0, len(coords)*6)

	var prevLat, prevLon int64
	for _, c := range coords {
		lat := int64(math.Round(c.Lat * factor))
		lon := int64(math.Round(c.Lon * factor))

		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(buf)
}

func appendValue(buf []byte, v int64) []byte {
	u := v << 1
	if v < 0 {
		u = ^u
	}

	for u >= 0x20 {
		buf = append(buf, byte((u&0x1f)|0x20)+63)
		u >>= 5
	}
	return append(buf, byte(u)+63)
}
