package competition

import "time"

// Trade is a completed trade as reported by the upstream execution pipeline.
type Trade struct {
	UserID       string    `json:"userId"`
	TxHash       string    `json:"txHash"`
	TokenA       string    `json:"tokenA"`
	TokenB       string    `json:"tokenB"`
	TokenAAmount float64   `json:"tokenAAmount"`
	TokenBAmount float64   `json:"tokenBAmount"`
	USDVolume    float64   `json:"usdVolume"`
	Exchange     string    `json:"exchange"`
	Timestamp    time.Time `json:"timestamp"`
}

// InvolvesToken reports whether either side of the trade touched the token.
func (t *Trade) InvolvesToken(token string) bool {
	return t.TokenA == token || t.TokenB == token
}
