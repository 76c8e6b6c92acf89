package ridermap

import (
	"context"
	"strings"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
)

// FeatureCollection is the GeoJSON document served for the rider layer.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string          `json:"type"`
	Geometry   Point           `json:"geometry"`
	Properties RiderProperties `json:"properties"`
}

// Point holds GeoJSON coordinates in [longitude, latitude] order.
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type RiderProperties struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Locality string `json:"locality"`
	Comarca  string `json:"comarca,omitempty"`
	Province string `json:"province,omitempty"`
	Level    string `json:"level,omitempty"`
}

// Riders builds the rider layer from approved, placed members.
// Members sitting on 0 for either axis or outside the valid degree ranges are left off the map.
func (s *Service) Riders(ctx context.Context) (FeatureCollection, error) {
	ms, err := s.members.List(ctx, memberrepo.ListFilter{ApprovedOnly: true})
	if err != nil {
		return FeatureCollection{}, err
	}
	scores, err := s.scores.List(ctx)
	if err != nil {
		return FeatureCollection{}, err
	}
	levels := make(map[domain.MemberID]string, len(scores))
	for _, sc := range scores {
		levels[sc.MemberID] = sc.Tier.Label
	}

	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(ms))}
	for _, m := range ms {
		if m.Latitude == nil || m.Longitude == nil {
			continue
		}
		lat, lng := *m.Latitude, *m.Longitude
		if !mappable(lat, lng) {
			continue
		}
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Point{Type: "Point", Coordinates: [2]float64{lng, lat}},
			Properties: RiderProperties{
				ID:       int64(m.ID),
				Name:     strings.TrimSpace(m.DisplayName),
				Locality: string(m.Locality),
				Comarca:  m.Comarca,
				Province: m.Province,
				Level:    levels[m.ID],
			},
		})
	}
	return fc, nil
}

func mappable(lat, lng float64) bool {
	if lat == 0 || lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
