package domain

// Coordinates is a decimal-degree position.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Locality is one row of the locality reference table.
//
// The source table stores x = longitude and y = latitude; Base translates that into Coordinates.
type Locality struct {
	Name     LocalityName
	Comarca  string
	Province string
	X        float64
	Y        float64
}

func (l Locality) Base() Coordinates {
	return Coordinates{Latitude: l.Y, Longitude: l.X}
}
