package jobs

// ScoreRecomputeArgs asks for every member's current score to be recomputed.
type ScoreRecomputeArgs struct{}

func (ScoreRecomputeArgs) Kind() string { return "score_recompute_all" }

// PlacementArgs asks for a placement batch. An empty Locality places the whole directory.
type PlacementArgs struct {
	Locality string `json:"locality,omitempty"`
}

func (PlacementArgs) Kind() string { return "member_placement" }
