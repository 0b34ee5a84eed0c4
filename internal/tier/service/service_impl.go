// Package service implements tier management.
package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/perkway/internal/tier/domain"
	"github.com/smallbiznis/perkway/pkg/repository"
)

type Param struct {
	fx.In

	Logger *zap.Logger
	DB     *gorm.DB
	Node   *snowflake.Node
	Tiers  repository.Repository[domain.Tier]
}

type tierService struct {
	logger *zap.Logger
	db     *gorm.DB
	node   *snowflake.Node
	tiers  repository.Repository[domain.Tier]
}

func New(p Param) domain.Service {
	return &tierService{
		logger: p.Logger.Named("tier.service"),
		db:     p.DB,
		node:   p.Node,
		tiers:  p.Tiers,
	}
}

func (s *tierService) Create(ctx context.Context, req domain.CreateTierRequest) (domain.Tier, error) {
	code := strings.ToLower(strings.TrimSpace(req.Code))
	if code == "" {
		return domain.Tier{}, domain.ErrInvalidCode
	}
	if req.PointThreshold < 0 {
		return domain.Tier{}, domain.ErrInvalidThreshold
	}
	if req.PointsMultiplier.LessThan(decimal.NewFromInt(1)) {
		return domain.Tier{}, domain.ErrInvalidMultiplier
	}

	tier := domain.Tier{
		ID:               s.node.Generate(),
		Code:             code,
		Name:             req.Name,
		PointThreshold:   req.PointThreshold,
		PointsMultiplier: req.PointsMultiplier,
		Benefits:         req.Benefits,
		Active:           true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.tiers.WithTrx(tx)
		existing, err := repo.FindOne(ctx, &domain.Tier{PointThreshold: req.PointThreshold, Active: true})
		if err != nil {
			return err
		}
		// Where(filter) skips zero values, so the default tier needs a raw check.
		if req.PointThreshold == 0 {
			var count int64
			if err := tx.WithContext(ctx).Model(&domain.Tier{}).
				Where("point_threshold = 0 AND active = ?", true).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return domain.ErrDuplicateThreshold
			}
		} else if existing != nil {
			return domain.ErrDuplicateThreshold
		}
		return repo.Create(ctx, &tier)
	})
	if err != nil {
		return domain.Tier{}, err
	}

	s.logger.Info("tier created",
		zap.String("tier_id", tier.ID.String()),
		zap.String("code", tier.Code),
		zap.Int64("point_threshold", tier.PointThreshold),
	)
	return tier, nil
}

func (s *tierService) Update(ctx context.Context, req domain.UpdateTierRequest) (domain.Tier, error) {
	existing, err := s.tiers.FindOne(ctx, &domain.Tier{ID: parseID(req.TierID)})
	if err != nil {
		return domain.Tier{}, err
	}
	if existing == nil {
		return domain.Tier{}, domain.ErrTierNotFound
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.PointsMultiplier != nil {
		if req.PointsMultiplier.LessThan(decimal.NewFromInt(1)) {
			return domain.Tier{}, domain.ErrInvalidMultiplier
		}
		updates["points_multiplier"] = *req.PointsMultiplier
	}
	if req.Benefits != nil {
		updates["benefits"] = datatypes.NewJSONSlice(req.Benefits)
	}
	if len(updates) == 0 {
		return *existing, nil
	}

	if err := s.tiers.Update(ctx, req.TierID, updates); err != nil {
		return domain.Tier{}, err
	}
	updated, err := s.tiers.FindOne(ctx, &domain.Tier{ID: existing.ID})
	if err != nil {
		return domain.Tier{}, err
	}
	return *updated, nil
}

func (s *tierService) GetByID(ctx context.Context, id string) (domain.Tier, error) {
	tier, err := s.tiers.FindOne(ctx, &domain.Tier{ID: parseID(id)})
	if err != nil {
		return domain.Tier{}, err
	}
	if tier == nil {
		return domain.Tier{}, domain.ErrTierNotFound
	}
	return *tier, nil
}

func (s *tierService) List(ctx context.Context) ([]domain.Tier, error) {
	rows, err := s.tiers.Find(ctx, &domain.Tier{})
	if err != nil {
		return nil, err
	}
	return collect(rows), nil
}

func (s *tierService) ListActive(ctx context.Context) ([]domain.Tier, error) {
	rows, err := s.tiers.Find(ctx, &domain.Tier{Active: true})
	if err != nil {
		return nil, err
	}
	return collect(rows), nil
}

func (s *tierService) Deactivate(ctx context.Context, id string) error {
	tier, err := s.tiers.FindOne(ctx, &domain.Tier{ID: parseID(id)})
	if err != nil {
		return err
	}
	if tier == nil {
		return domain.ErrTierNotFound
	}
	if tier.PointThreshold == 0 {
		return domain.ErrDefaultTierLocked
	}
	return s.tiers.Update(ctx, id, map[string]any{"active": false})
}

func collect(rows []*domain.Tier) []domain.Tier {
	out := make([]domain.Tier, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out
}

func parseID(raw string) snowflake.ID {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}
