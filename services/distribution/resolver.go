package distribution

import "tradeleague/services/competition"

// Prize is what one rank is owed.
type Prize struct {
	Points      int64   `json:"points"`
	TokenAmount float64 `json:"tokenAmount,omitempty"`
	TokenUnit   string  `json:"tokenUnit,omitempty"`
}

// ResolvePrize maps a rank to its tier prize, or nil when no tier covers the
// rank. Every holder of a shared rank resolves to the same full prize; tied
// winners are never prorated.
func ResolvePrize(rank int, tiers []competition.PrizeTier) *Prize {
	for i := range tiers {
		if tiers[i].Covers(rank) {
			return &Prize{
				Points:      tiers[i].PrizePoints,
				TokenAmount: tiers[i].PrizeTokenAmount,
				TokenUnit:   tiers[i].PrizeTokenUnit,
			}
		}
	}
	return nil
}
