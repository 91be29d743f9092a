package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"tradeleague/pkg/kafka"
	"tradeleague/services/competition"
)

// TradeHandler consumes trade.completed events and applies each trade to
// every competition it matches. Competitions succeed or fail independently;
// a failure on one never blocks the others, and redelivery is safe because
// attribution is idempotent per competition.
type TradeHandler struct {
	matcher *competition.Matcher
	service *Service
}

type TradeHandlerParams struct {
	fx.In

	Matcher *competition.Matcher
	Service *Service
}

func NewTradeHandler(p TradeHandlerParams) *TradeHandler {
	return &TradeHandler{
		matcher: p.Matcher,
		service: p.Service,
	}
}

func (h *TradeHandler) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	var t competition.Trade
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		return fmt.Errorf("decode trade event: %w", err)
	}
	if t.TxHash == "" || t.UserID == "" {
		return fmt.Errorf("trade event missing txHash or userId")
	}
	if t.USDVolume < 0 {
		return fmt.Errorf("trade %s has negative usd volume", t.TxHash)
	}

	matches, err := h.matcher.MatchTrade(ctx, t)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		zap.L().Debug("trade matched no competitions", zap.String("tx_hash", t.TxHash))
		return nil
	}

	var failures []error
	for _, c := range matches {
		if _, err := h.service.Apply(ctx, c.ID, t); err != nil {
			zap.L().Error("failed to apply trade to competition",
				zap.String("competition_id", c.ID),
				zap.String("tx_hash", t.TxHash),
				zap.Error(err),
			)
			failures = append(failures, fmt.Errorf("competition %s: %w", c.ID, err))
		}
	}

	return errors.Join(failures...)
}
