package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Shape identifies which raw coordinate layout was recognized.
type Shape string

// Recognized coordinate shapes.
const (
	ShapeEmpty        Shape = "empty"        // nil, empty sequence, JSON null
	ShapeDelimited    Shape = "delimited"    // "lng, lat, lng, lat, ..."
	ShapePairs        Shape = "pairs"        // [[a, b], ...] in either order
	ShapeObjects      Shape = "objects"      // [{lat, lng}, ...]
	ShapeUnrecognized Shape = "unrecognized" // anything else
)

// Normalization is the outcome of normalizing a raw coordinates value.
type Normalization struct {
	Points  Polygon // Never nil
	Shape   Shape   // Detected input shape
	Dropped int     // Entries discarded as unparseable
}

var errUnrecognizedShape = fmt.Errorf("unrecognized shape: %w", ErrInvalidCoordinate)

// NormalizeCoordinates converts a geofence's raw coordinates into an ordered
// list of points. It never fails: unparseable input yields an empty polygon
// and unparseable entries are dropped.
func NormalizeCoordinates(raw any) Polygon {
	return Normalize(raw).Points
}

// Normalize is NormalizeCoordinates with the detected shape and drop count.
func Normalize(raw any) Normalization {
	n, err := normalize(raw)
	if err != nil {
		return Normalization{Points: Polygon{}, Shape: ShapeUnrecognized}
	}
	if n.Points == nil {
		n.Points = Polygon{}
	}
	return n
}

func normalize(raw any) (Normalization, error) {
	switch v := raw.(type) {
	case string:
		return normalizeString(v)
	case []byte:
		return normalizeString(string(v))
	case json.RawMessage:
		return normalizeString(string(v))
	default:
		return normalizeValue(raw)
	}
}

// normalizeString tries strict JSON first and falls back to a delimited
// number list. The fallback result is final.
func normalizeString(s string) (Normalization, error) {
	parsed, err := parseJSON(s)
	if err != nil {
		return normalizeDelimited(s), nil
	}
	return normalizeValue(parsed)
}

// normalizeValue classifies a decoded value. Strings are not re-parsed here.
func normalizeValue(v any) (Normalization, error) {
	switch v := v.(type) {
	case nil:
		return Normalization{Shape: ShapeEmpty}, nil
	case []any:
		return normalizeSequence(v)
	case Polygon:
		return normalizeSequence(pointsToObjects(v))
	case []GeoPoint:
		return normalizeSequence(pointsToObjects(v))
	case [][]float64:
		seq := make([]any, len(v))
		for i, pair := range v {
			seq[i] = pair
		}
		return normalizeSequence(seq)
	case []map[string]any:
		seq := make([]any, len(v))
		for i, obj := range v {
			seq[i] = obj
		}
		return normalizeSequence(seq)
	default:
		return Normalization{}, errUnrecognizedShape
	}
}

// normalizeSequence picks the element layout from the first element only.
// Mixed sequences are not supported. A first element with two or more
// members selects pairs whatever the members are; unusable pairs are
// dropped one by one.
func normalizeSequence(seq []any) (Normalization, error) {
	if len(seq) == 0 {
		return Normalization{Shape: ShapeEmpty}, nil
	}

	if first, ok := asSequence(seq[0]); ok && len(first) >= 2 {
		return normalizePairs(seq), nil
	}
	if _, ok := seq[0].(map[string]any); ok {
		return normalizeObjects(seq), nil
	}
	return Normalization{}, errUnrecognizedShape
}

func normalizePairs(seq []any) Normalization {
	n := Normalization{Shape: ShapePairs, Points: make(Polygon, 0, len(seq))}
	for _, el := range seq {
		pair, ok := asSequence(el)
		if !ok || len(pair) < 2 {
			n.Dropped++
			continue
		}
		a, okA := toFloat(pair[0])
		b, okB := toFloat(pair[1])
		if !okA || !okB {
			n.Dropped++
			continue
		}
		n.Points = append(n.Points, orientPair(a, b))
	}
	return n
}

// orientPair decides whether (a, b) is (lng, lat) or (lat, lng). A first
// value larger than 1 in magnitude and not smaller than the second is taken
// as longitude. Pairs within one degree of the origin are read as (lat, lng)
// even when they were written the other way round; stored geofences depend on
// this exact rule.
func orientPair(a, b float64) GeoPoint {
	if math.Abs(a) > 1 && math.Abs(a) >= math.Abs(b) {
		return GeoPoint{Lat: b, Lng: a}
	}
	return GeoPoint{Lat: a, Lng: b}
}

func normalizeObjects(seq []any) Normalization {
	n := Normalization{Shape: ShapeObjects, Points: make(Polygon, 0, len(seq))}
	for _, el := range seq {
		obj, ok := el.(map[string]any)
		if !ok {
			n.Dropped++
			continue
		}
		lat, okLat := firstNumber(obj, "lat", "latitude")
		lng, okLng := firstNumber(obj, "lng", "longitude", "long")
		if !okLat || !okLng {
			n.Dropped++
			continue
		}
		n.Points = append(n.Points, GeoPoint{Lat: lat, Lng: lng})
	}
	return n
}

// normalizeDelimited reads "lng, lat, lng, lat, ..." and drops a trailing
// unpaired number.
func normalizeDelimited(s string) Normalization {
	tokens := strings.Split(s, ",")
	nums := make([]float64, 0, len(tokens))
	dropped := 0
	for _, tok := range tokens {
		f, ok := parseFloatPrefix(strings.TrimSpace(tok))
		if !ok {
			dropped++
			continue
		}
		nums = append(nums, f)
	}

	n := Normalization{Shape: ShapeDelimited, Points: make(Polygon, 0, len(nums)/2)}
	for i := 0; i+1 < len(nums); i += 2 {
		n.Points = append(n.Points, GeoPoint{Lat: nums[i+1], Lng: nums[i]})
	}
	n.Dropped = dropped + len(nums)%2
	return n
}

// firstNumber returns the first key whose value coerces to a finite number.
func firstNumber(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// toFloat coerces numbers and numeric strings to a finite float64. Any other
// value, and NaN or infinite results, report false.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		return parseFloatPrefix(string(n))
	case string:
		return parseFloatPrefix(n)
	default:
		return 0, false
	}
	return f, isFinite(f)
}

// parseFloatPrefix parses the longest leading decimal literal of s, ignoring
// leading whitespace and any trailing text ("12.5abc" is 12.5).
func parseFloatPrefix(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := floatPrefixLen(s)
	if end == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, isFinite(f)
}

func floatPrefixLen(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}

	// Exponent counts only when digits follow.
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// parseJSON decodes exactly one JSON value. Numbers stay json.Number so that
// out-of-range literals reach toFloat instead of failing the parse.
func parseJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []float64:
		out := make([]any, len(s))
		for i, f := range s {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

func pointsToObjects(points []GeoPoint) []any {
	seq := make([]any, len(points))
	for i, p := range points {
		seq[i] = map[string]any{"lat": p.Lat, "lng": p.Lng}
	}
	return seq
}
