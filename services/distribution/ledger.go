package distribution

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// PointLedger credits prize points to a user's balance. The reference is an
// idempotency key; crediting the same reference twice must not double-pay.
type PointLedger interface {
	Credit(ctx context.Context, userID string, points int64, reference string) error
}

// LedgerEntry is one credit in the database-backed point ledger.
type LedgerEntry struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	UserID    string    `gorm:"column:user_id;not null;index" json:"userId"`
	Points    int64     `gorm:"column:points;not null" json:"points"`
	Reference string    `gorm:"column:reference;not null;uniqueIndex" json:"reference"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (LedgerEntry) TableName() string { return "point_ledger_entries" }

// DBPointLedger keeps point balances as an append-only entry table.
type DBPointLedger struct {
	db   *gorm.DB
	node *snowflake.Node
}

type DBPointLedgerParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewDBPointLedger(p DBPointLedgerParams) *DBPointLedger {
	return &DBPointLedger{db: p.DB, node: p.Node}
}

func (l *DBPointLedger) Credit(ctx context.Context, userID string, points int64, reference string) error {
	entry := LedgerEntry{
		ID:        l.node.Generate().String(),
		UserID:    userID,
		Points:    points,
		Reference: reference,
	}
	err := l.db.WithContext(ctx).Create(&entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// already credited under this reference
		return nil
	}
	return err
}

// Balance sums a user's credited points.
func (l *DBPointLedger) Balance(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := l.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("COALESCE(SUM(points), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	return total, err
}
