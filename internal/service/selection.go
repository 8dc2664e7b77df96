package service

import (
	"sort"

	"rideengine/internal/domain"
	"rideengine/internal/geo"
)

// RankCandidates returns the dispatchable candidates ordered best first:
// highest average rating, then nearest to pickup. Candidates that are not
// AVAILABLE, not approved, or have no known location are dropped. The input
// slice is not modified.
func RankCandidates(pickup domain.Point, candidates []domain.Candidate) []domain.Candidate {
	ranked := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Status != domain.DriverStatusAvailable || !c.IsApproved || c.Location == nil {
			continue
		}
		c.DistanceKm = geo.DistanceKm(pickup, *c.Location)
		ranked = append(ranked, c)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AverageRating != ranked[j].AverageRating {
			return ranked[i].AverageRating > ranked[j].AverageRating
		}
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})

	return ranked
}

// SelectDriver picks the single best candidate for a pickup point.
func SelectDriver(pickup domain.Point, candidates []domain.Candidate) (domain.Candidate, error) {
	ranked := RankCandidates(pickup, candidates)
	if len(ranked) == 0 {
		return domain.Candidate{}, ErrNoDriverAvailable
	}
	return ranked[0], nil
}
