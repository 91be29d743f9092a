package competition

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradeleague/pkg/errutil"
)

// ========================================================
// Service Definition
// ========================================================

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
	}
}

// ========================================================
// Operations
// ========================================================

type CreateCompetitionInput struct {
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	StartDate        time.Time   `json:"startDate"`
	EndDate          time.Time   `json:"endDate"`
	EligibleToken    string      `json:"eligibleToken"`
	EligibleExchange string      `json:"eligibleExchange"`
	TotalPrizePoints int64       `json:"totalPrizePoints"`
	IconURL          string      `json:"iconUrl"`
	BannerURL        string      `json:"bannerUrl"`
	Tiers            []PrizeTier `json:"tiers"`
}

func (s *Service) CreateCompetition(ctx context.Context, in CreateCompetitionInput) (*Competition, error) {
	if in.Name == "" {
		return nil, errutil.ValidationFailed("name is required", nil)
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, errutil.ValidationFailed("endDate must be after startDate", nil)
	}
	if err := ValidateTiers(in.Tiers); err != nil {
		return nil, err
	}

	c := Competition{
		ID:               s.node.Generate().String(),
		Name:             in.Name,
		Description:      in.Description,
		Status:           StatusActive,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		EligibleToken:    in.EligibleToken,
		EligibleExchange: in.EligibleExchange,
		TotalPrizePoints: in.TotalPrizePoints,
		IconURL:          in.IconURL,
		BannerURL:        in.BannerURL,
	}
	if c.EligibleToken == "" {
		c.EligibleToken = WildcardAll
	}
	if c.EligibleExchange == "" {
		c.EligibleExchange = WildcardAll
	}
	c.Hash = c.GenerateHash()

	for i := range in.Tiers {
		in.Tiers[i].ID = s.node.Generate().String()
		in.Tiers[i].CompetitionID = c.ID
	}
	c.Tiers = in.Tiers

	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, errutil.Internal("failed to create competition", err)
	}

	zap.L().Info("competition created",
		zap.String("competition_id", c.ID),
		zap.String("name", c.Name),
		zap.Time("start_date", c.StartDate),
		zap.Time("end_date", c.EndDate),
	)

	return &c, nil
}

func (s *Service) GetCompetition(ctx context.Context, id string) (*Competition, error) {
	var c Competition
	err := s.db.WithContext(ctx).
		Preload("Tiers").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("competition not found", err)
		}
		return nil, errutil.Internal("failed to load competition", err)
	}
	return &c, nil
}

type ListCompetitionsInput struct {
	Status Status
	Limit  int
	Offset int
}

func (s *Service) ListCompetitions(ctx context.Context, in ListCompetitionsInput) ([]Competition, int64, error) {
	if in.Limit <= 0 || in.Limit > 100 {
		in.Limit = 20
	}

	q := s.db.WithContext(ctx).Model(&Competition{})
	if in.Status != "" {
		q = q.Where("status = ?", in.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errutil.Internal("failed to count competitions", err)
	}

	var items []Competition
	err := q.Preload("Tiers").
		Order("start_date DESC").
		Limit(in.Limit).
		Offset(in.Offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, errutil.Internal("failed to list competitions", err)
	}

	return items, total, nil
}

// TransitionStatus moves a competition from one status to another. The update
// is guarded on the current status so concurrent transitions cannot race past
// each other.
func (s *Service) TransitionStatus(ctx context.Context, id string, from, to Status) error {
	return transitionStatus(s.db.WithContext(ctx), id, from, to)
}

func transitionStatus(tx *gorm.DB, id string, from, to Status) error {
	res := tx.Model(&Competition{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return errutil.Internal("failed to update competition status", res.Error)
	}
	if res.RowsAffected == 0 {
		return errutil.Conflict("competition is not in the expected status", nil)
	}
	return nil
}

// EndExpired flips every ACTIVE competition whose window has closed to ENDED.
// It returns the ids of the competitions it ended.
func (s *Service) EndExpired(ctx context.Context, now time.Time) ([]string, error) {
	var expired []Competition
	err := s.db.WithContext(ctx).
		Select("id").
		Where("status = ? AND end_date < ?", StatusActive, now).
		Find(&expired).Error
	if err != nil {
		return nil, errutil.Internal("failed to find expired competitions", err)
	}

	ended := make([]string, 0, len(expired))
	for _, c := range expired {
		if err := s.TransitionStatus(ctx, c.ID, StatusActive, StatusEnded); err != nil {
			// Another sweeper got there first; nothing to do.
			if errutil.StatusOf(err) == errutil.StatusConflict {
				continue
			}
			return ended, err
		}
		ended = append(ended, c.ID)
		zap.L().Info("competition ended", zap.String("competition_id", c.ID))
	}

	return ended, nil
}
