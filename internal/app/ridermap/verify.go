package ridermap

import (
	"context"
	"errors"
	"math"

	"github.com/Overland-East-Bay/rider-standings-api/internal/app/placement"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
)

// offsetTolerance absorbs float rounding from storage.
const offsetTolerance = 1e-9

// VerifyReport is a read-only integrity check of stored map positions.
type VerifyReport struct {
	Total    int
	Placed   int
	Unplaced int
	// UnknownLocality counts placed members whose locality has no reference row.
	UnknownLocality int
	// OffGrid lists placed members farther from their locality base than any grid cell can be.
	OffGrid []domain.MemberID
}

// Verify compares every stored position with the grid its locality can produce.
func (s *Service) Verify(ctx context.Context) (VerifyReport, error) {
	ms, err := s.members.List(ctx, memberrepo.ListFilter{})
	if err != nil {
		return VerifyReport{}, err
	}

	perLocality := make(map[domain.LocalityName]int)
	for _, m := range ms {
		perLocality[m.Locality]++
	}

	bases := make(map[domain.LocalityName]*domain.Coordinates)
	rep := VerifyReport{Total: len(ms), OffGrid: []domain.MemberID{}}
	for _, m := range ms {
		if m.Latitude == nil || m.Longitude == nil {
			rep.Unplaced++
			continue
		}
		rep.Placed++

		base, seen := bases[m.Locality]
		if !seen {
			l, err := s.localities.Lookup(ctx, m.Locality)
			switch {
			case err == nil:
				c := l.Base()
				base = &c
			case errors.Is(err, localityrepo.ErrNotFound):
			default:
				return VerifyReport{}, err
			}
			bases[m.Locality] = base
		}
		if base == nil {
			rep.UnknownLocality++
			continue
		}

		limit := placement.MaxOffset(perLocality[m.Locality]) + offsetTolerance
		if math.Abs(*m.Latitude-base.Latitude) > limit || math.Abs(*m.Longitude-base.Longitude) > limit {
			rep.OffGrid = append(rep.OffGrid, m.ID)
		}
	}
	return rep, nil
}
