package distribution

import (
	"time"

	"gorm.io/datatypes"
)

type AuditStatus string

const (
	AuditGranted AuditStatus = "GRANTED"
	AuditSkipped AuditStatus = "SKIPPED"
	AuditFailed  AuditStatus = "FAILED"
	AuditNoPrize AuditStatus = "NO_PRIZE"
)

// Audit is the per-participant record of one distribution pass.
type Audit struct {
	ID            string         `gorm:"column:id;primaryKey" json:"id"`
	CompetitionID string         `gorm:"column:competition_id;not null;index" json:"competitionId"`
	UserID        string         `gorm:"column:user_id;not null" json:"userId"`
	Rank          int            `gorm:"column:rank;not null" json:"rank"`
	PrizePoints   int64          `gorm:"column:prize_points" json:"prizePoints"`
	TokenAmount   float64        `gorm:"column:token_amount" json:"tokenAmount"`
	TokenUnit     string         `gorm:"column:token_unit" json:"tokenUnit,omitempty"`
	Status        AuditStatus    `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Reason        string         `gorm:"column:reason" json:"reason,omitempty"`
	OperatorID    string         `gorm:"column:operator_id" json:"operatorId"`
	Detail        datatypes.JSON `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Audit) TableName() string { return "distribution_audits" }
