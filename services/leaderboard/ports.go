package leaderboard

import "context"

// TokenInfo is display metadata for a traded token.
type TokenInfo struct {
	UnitID   string `json:"unitId"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	LogoURL  string `json:"logoUrl,omitempty"`
}

// TokenMetadata resolves display metadata for a token unit. Lookup failures
// must not take down leaderboard reads; callers degrade to a board without
// token info.
type TokenMetadata interface {
	Lookup(ctx context.Context, unitID string) (*TokenInfo, error)
}

// StaticTokenMetadata serves token metadata from a fixed table. It stands in
// for the registry service when none is configured.
type StaticTokenMetadata struct {
	tokens map[string]TokenInfo
}

func NewStaticTokenMetadata(tokens ...TokenInfo) *StaticTokenMetadata {
	m := make(map[string]TokenInfo, len(tokens))
	for _, t := range tokens {
		m[t.UnitID] = t
	}
	return &StaticTokenMetadata{tokens: m}
}

func (s *StaticTokenMetadata) Lookup(_ context.Context, unitID string) (*TokenInfo, error) {
	if t, ok := s.tokens[unitID]; ok {
		return &t, nil
	}
	return &TokenInfo{UnitID: unitID, Symbol: unitID}, nil
}
