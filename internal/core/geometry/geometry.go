// Package geometry holds the coordinate arithmetic shared by the hypothesis
// generators and the optimizer. Every function is pure.
package geometry

import (
	"math"
	"sort"

	"github.com/samirrijal/meetpoint/internal/core/domain"
	"github.com/samirrijal/meetpoint/internal/pkg/geospatial"
)

const (
	minLat = -90.0
	maxLat = 90.0
	minLon = -180.0
	maxLon = 180.0

	// MinBoxSpanDegrees is the smallest span a grid box may have on either axis.
	MinBoxSpanDegrees = 0.001
)

// Midpoint is the arithmetic midpoint of locations I and J (I < J).
type Midpoint struct {
	I, J       int
	Coordinate domain.Coordinate
}

// ValidateCoordinate reports whether c is finite and within WGS 84 ranges.
func ValidateCoordinate(c domain.Coordinate) bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= minLat && c.Latitude <= maxLat &&
		c.Longitude >= minLon && c.Longitude <= maxLon
}

// Centroid returns the arithmetic mean of all location coordinates.
func Centroid(locations []domain.Location) (domain.Coordinate, error) {
	if len(locations) == 0 {
		return domain.Coordinate{}, domain.Errorf(domain.CodeAnchorGenerationFailed, "",
			"cannot compute centroid of zero locations")
	}
	c := MeanCoordinate(domain.Coordinates(locations))
	if !ValidateCoordinate(c) {
		return domain.Coordinate{}, domain.Errorf(domain.CodeAnchorGenerationFailed, "",
			"centroid (%f, %f) out of bounds", c.Latitude, c.Longitude)
	}
	return c, nil
}

// MeanCoordinate averages coordinates axis by axis. An empty slice yields the
// zero coordinate.
func MeanCoordinate(coords []domain.Coordinate) domain.Coordinate {
	if len(coords) == 0 {
		return domain.Coordinate{}
	}
	var lat, lon float64
	for _, c := range coords {
		lat += c.Latitude
		lon += c.Longitude
	}
	n := float64(len(coords))
	return domain.Coordinate{Latitude: lat / n, Longitude: lon / n}
}

// Median returns the independent per-axis median of the locations. Even
// counts average the two middle values.
func Median(locations []domain.Location) (domain.Coordinate, error) {
	if len(locations) == 0 {
		return domain.Coordinate{}, domain.Errorf(domain.CodeAnchorGenerationFailed, "",
			"cannot compute median of zero locations")
	}
	lats := make([]float64, len(locations))
	lons := make([]float64, len(locations))
	for i, l := range locations {
		lats[i] = l.Coordinate.Latitude
		lons[i] = l.Coordinate.Longitude
	}
	c := domain.Coordinate{Latitude: median(lats), Longitude: median(lons)}
	if !ValidateCoordinate(c) {
		return domain.Coordinate{}, domain.Errorf(domain.CodeAnchorGenerationFailed, "",
			"median (%f, %f) out of bounds", c.Latitude, c.Longitude)
	}
	return c, nil
}

func median(values []float64) float64 {
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

// PairwiseMidpoints returns the midpoint of every unordered pair, ordered by
// the outer index i then the inner index j > i.
func PairwiseMidpoints(locations []domain.Location) []Midpoint {
	n := len(locations)
	if n < 2 {
		return nil
	}
	out := make([]Midpoint, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := locations[i].Coordinate, locations[j].Coordinate
			out = append(out, Midpoint{
				I: i,
				J: j,
				Coordinate: domain.Coordinate{
					Latitude:  (a.Latitude + b.Latitude) / 2,
					Longitude: (a.Longitude + b.Longitude) / 2,
				},
			})
		}
	}
	return out
}

// BoundingBox returns the tight box around the locations padded by paddingKm
// on every side. Padding is converted at a flat 111 km per degree on both
// axes and the result is clamped to legal ranges.
func BoundingBox(locations []domain.Location, paddingKm float64) (domain.Bounds, error) {
	if len(locations) == 0 {
		return domain.Bounds{}, domain.Errorf(domain.CodeGridGenerationFailed, "",
			"cannot compute bounding box of zero locations")
	}
	b := domain.Bounds{North: minLat, South: maxLat, East: minLon, West: maxLon}
	for _, l := range locations {
		c := l.Coordinate
		if !ValidateCoordinate(c) {
			return domain.Bounds{}, domain.Errorf(domain.CodeInvalidCoordinate, "",
				"location %q has invalid coordinate (%f, %f)", l.ID, c.Latitude, c.Longitude)
		}
		b.North = math.Max(b.North, c.Latitude)
		b.South = math.Min(b.South, c.Latitude)
		b.East = math.Max(b.East, c.Longitude)
		b.West = math.Min(b.West, c.Longitude)
	}

	pad := geospatial.KmToLatDegrees(paddingKm)
	return clamp(domain.Bounds{
		North: b.North + pad,
		South: b.South - pad,
		East:  b.East + pad,
		West:  b.West - pad,
	}), nil
}

// LocalBoundingBox returns a box of radiusKm around center. Longitude extent
// is corrected by the cosine of the center latitude.
func LocalBoundingBox(center domain.Coordinate, radiusKm float64) domain.Bounds {
	dLat := geospatial.KmToLatDegrees(radiusKm)
	dLon := geospatial.KmToLonDegrees(radiusKm, center.Latitude)
	return clamp(domain.Bounds{
		North: center.Latitude + dLat,
		South: center.Latitude - dLat,
		East:  center.Longitude + dLon,
		West:  center.Longitude - dLon,
	})
}

func clamp(b domain.Bounds) domain.Bounds {
	b.North = math.Min(maxLat, math.Max(minLat, b.North))
	b.South = math.Min(maxLat, math.Max(minLat, b.South))
	b.East = math.Min(maxLon, math.Max(minLon, b.East))
	b.West = math.Min(maxLon, math.Max(minLon, b.West))
	return b
}

// ValidateBox checks ordering, span and corner legality of a grid box.
func ValidateBox(b domain.Bounds) error {
	corners := []domain.Coordinate{
		{Latitude: b.North, Longitude: b.East},
		{Latitude: b.North, Longitude: b.West},
		{Latitude: b.South, Longitude: b.East},
		{Latitude: b.South, Longitude: b.West},
	}
	for _, c := range corners {
		if !ValidateCoordinate(c) {
			return domain.Errorf(domain.CodeGridGenerationFailed, "",
				"bounding box corner (%f, %f) out of range", c.Latitude, c.Longitude)
		}
	}
	if b.North <= b.South {
		return domain.Errorf(domain.CodeGridGenerationFailed, "",
			"bounding box north %f must exceed south %f", b.North, b.South)
	}
	if b.East <= b.West {
		return domain.Errorf(domain.CodeGridGenerationFailed, "",
			"bounding box east %f must exceed west %f", b.East, b.West)
	}
	latSpan, lonSpan := b.North-b.South, b.East-b.West
	if latSpan < MinBoxSpanDegrees || latSpan > 180 {
		return domain.Errorf(domain.CodeGridGenerationFailed, "",
			"bounding box latitude span %f outside [%g, 180]", latSpan, MinBoxSpanDegrees)
	}
	if lonSpan < MinBoxSpanDegrees || lonSpan > 360 {
		return domain.Errorf(domain.CodeGridGenerationFailed, "",
			"bounding box longitude span %f outside [%g, 360]", lonSpan, MinBoxSpanDegrees)
	}
	return nil
}

// GridPoints divides b into n×n cells and returns the cell centres row by row,
// north to south and west to east.
func GridPoints(b domain.Bounds, n int) ([]domain.Coordinate, error) {
	if n < 1 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "", "grid size must be positive, got %d", n)
	}
	latStep := (b.North - b.South) / float64(n)
	lonStep := (b.East - b.West) / float64(n)

	out := make([]domain.Coordinate, 0, n*n)
	for row := 0; row < n; row++ {
		lat := b.North - (float64(row)+0.5)*latStep
		for col := 0; col < n; col++ {
			c := domain.Coordinate{
				Latitude:  lat,
				Longitude: b.West + (float64(col)+0.5)*lonStep,
			}
			if !ValidateCoordinate(c) {
				return nil, domain.Errorf(domain.CodeInvalidCoordinate, "",
					"grid cell %d out of bounds (%f, %f)", len(out), c.Latitude, c.Longitude)
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b domain.Coordinate) float64 {
	return geospatial.Haversine(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// EuclideanDegrees returns the planar distance between a and b in degrees.
func EuclideanDegrees(a, b domain.Coordinate) float64 {
	return math.Hypot(a.Latitude-b.Latitude, a.Longitude-b.Longitude)
}
