// Package placement spreads members who share a locality over a small grid around the locality's
// base coordinates so their map markers do not overlap.
//
// Placement is a pure function of (base coordinates, ordered member IDs, member ID). The engine keeps
// no state between calls; determinism depends on callers passing the same ordering every time.
package placement

import (
	"context"
	"math"
	"sort"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
)

// GridStep is the spacing between neighbouring grid cells, in degrees (roughly 60m of latitude).
const GridStep = 0.0006

// ErrLocalityNotFound is returned when the locality has no reference coordinates.
// It is an expected outcome: batch callers count it as skipped.
var ErrLocalityNotFound = localityrepo.ErrNotFound

// LocalityLookup resolves a locality name to its reference row.
// Implementations return ErrLocalityNotFound (or an error wrapping it) on a miss.
// localityrepo.Repository satisfies it.
type LocalityLookup interface {
	Lookup(ctx context.Context, name domain.LocalityName) (domain.Locality, error)
}

// Engine places members using a LocalityLookup for base coordinates.
type Engine struct {
	localities LocalityLookup
}

func NewEngine(localities LocalityLookup) *Engine {
	return &Engine{localities: localities}
}

// PlaceMember returns the coordinates for memberID among orderedIDs, which must be every member
// sharing the locality (memberID included) in ascending ID order.
func (e *Engine) PlaceMember(ctx context.Context, locality domain.LocalityName, memberID domain.MemberID, orderedIDs []domain.MemberID) (domain.Coordinates, error) {
	base, err := e.base(ctx, locality)
	if err != nil {
		return domain.Coordinates{}, err
	}
	return Place(base, memberID, orderedIDs), nil
}

// PlaceAllInLocality places every member of a locality in one pass.
// The ordering is computed once here (ascending ID) so grid size and positions agree for all members.
func (e *Engine) PlaceAllInLocality(ctx context.Context, locality domain.LocalityName, memberIDs []domain.MemberID) (map[domain.MemberID]domain.Coordinates, error) {
	base, err := e.base(ctx, locality)
	if err != nil {
		return nil, err
	}
	ordered := SortedIDs(memberIDs)
	out := make(map[domain.MemberID]domain.Coordinates, len(ordered))
	for _, id := range ordered {
		out[id] = Place(base, id, ordered)
	}
	return out, nil
}

func (e *Engine) base(ctx context.Context, locality domain.LocalityName) (domain.Coordinates, error) {
	if locality == "" {
		return domain.Coordinates{}, ErrLocalityNotFound
	}
	loc, err := e.localities.Lookup(ctx, locality)
	if err != nil {
		return domain.Coordinates{}, err
	}
	return loc.Base(), nil
}

// Place computes the grid position of memberID around base.
//
// A single member (or an empty list) sits exactly on base. A member missing from orderedIDs is
// treated as position 0.
func Place(base domain.Coordinates, memberID domain.MemberID, orderedIDs []domain.MemberID) domain.Coordinates {
	n := len(orderedIDs)
	if n <= 1 {
		return base
	}
	row, col := GridCell(indexOf(orderedIDs, memberID), n)
	latOffset, lngOffset := GridOffset(row, col, GridSize(n))
	return domain.Coordinates{
		Latitude:  base.Latitude + latOffset,
		Longitude: base.Longitude + lngOffset,
	}
}

// GridSize is the side of the smallest square grid holding n members.
func GridSize(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// GridCell maps a zero-based position to its (row, col) in a grid sized for n members.
func GridCell(position, n int) (row, col int) {
	size := GridSize(n)
	if size == 0 {
		return 0, 0
	}
	return position / size, position % size
}

// GridOffset converts a grid cell into degree offsets, centring the grid with truncating
// integer division (gridSize/2), so even-sized grids sit slightly towards negative offsets.
func GridOffset(row, col, gridSize int) (latOffset, lngOffset float64) {
	half := gridSize / 2
	return float64(row-half) * GridStep, float64(col-half) * GridStep
}

// MaxOffset is the largest absolute offset, per axis, a member of an n-member locality can get.
func MaxOffset(n int) float64 {
	size := GridSize(n)
	if size <= 1 {
		return 0
	}
	half := size / 2
	far := size - 1 - half
	if half > far {
		far = half
	}
	return float64(far) * GridStep
}

// SortedIDs returns a copy of ids in ascending order with duplicates removed.
func SortedIDs(ids []domain.MemberID) []domain.MemberID {
	out := make([]domain.MemberID, 0, len(ids))
	seen := make(map[domain.MemberID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func indexOf(ids []domain.MemberID, id domain.MemberID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return 0
}
