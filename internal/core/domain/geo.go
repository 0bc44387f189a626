package domain

// Coordinate is a WGS 84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location is one participant's starting point.
type Location struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
}

// Bounds represents an axis-aligned geographic bounding box.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Center returns the midpoint of the box.
func (b Bounds) Center() Coordinate {
	return Coordinate{
		Latitude:  (b.North + b.South) / 2,
		Longitude: (b.East + b.West) / 2,
	}
}

// Contains reports whether c lies inside the box, edges included.
func (b Bounds) Contains(c Coordinate) bool {
	return c.Latitude <= b.North && c.Latitude >= b.South &&
		c.Longitude <= b.East && c.Longitude >= b.West
}

// Coordinates extracts the coordinate of every location, preserving order.
func Coordinates(locations []Location) []Coordinate {
	out := make([]Coordinate, len(locations))
	for i, l := range locations {
		out[i] = l.Coordinate
	}
	return out
}
