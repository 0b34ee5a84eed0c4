package domain

import "sort"

// ResolveTier returns the highest active tier whose threshold is covered by
// lifetimeEarned. The zero-threshold default tier must exist among active
// tiers; resolution never downgrades because lifetime earned points are
// monotonically non-decreasing.
func ResolveTier(lifetimeEarned int64, tiers []Tier) (Tier, error) {
	active := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.Active {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return Tier{}, ErrMissingDefaultTier
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].PointThreshold < active[j].PointThreshold
	})
	if active[0].PointThreshold != 0 {
		return Tier{}, ErrMissingDefaultTier
	}

	best := active[0]
	for _, t := range active[1:] {
		if t.PointThreshold <= lifetimeEarned {
			best = t
		}
	}
	return best, nil
}
