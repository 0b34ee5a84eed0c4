// Package service implements earning rule management.
package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/perkway/internal/pointsrule/domain"
	"github.com/smallbiznis/perkway/pkg/db/option"
	"github.com/smallbiznis/perkway/pkg/repository"
)

type Param struct {
	fx.In

	Logger *zap.Logger
	Node   *snowflake.Node
	Rules  repository.Repository[domain.PointsRule]
}

type ruleService struct {
	logger *zap.Logger
	node   *snowflake.Node
	rules  repository.Repository[domain.PointsRule]
}

func New(p Param) domain.Service {
	return &ruleService{
		logger: p.Logger.Named("pointsrule.service"),
		node:   p.Node,
		rules:  p.Rules,
	}
}

func (s *ruleService) Create(ctx context.Context, req domain.CreateRuleRequest) (domain.PointsRule, error) {
	ruleType := strings.ToLower(strings.TrimSpace(req.RuleType))
	if !domain.ValidRuleType(ruleType) {
		return domain.PointsRule{}, domain.ErrInvalidRuleType
	}
	calc := strings.ToLower(strings.TrimSpace(req.Calculation))
	if !domain.ValidCalculation(calc) {
		return domain.PointsRule{}, domain.ErrInvalidCalculation
	}
	if !req.Value.IsPositive() {
		return domain.PointsRule{}, domain.ErrInvalidValue
	}
	if req.MinimumAmount.IsNegative() {
		return domain.PointsRule{}, domain.ErrInvalidValue
	}
	if req.MaxPerTransaction != nil && *req.MaxPerTransaction <= 0 {
		return domain.PointsRule{}, domain.ErrInvalidValue
	}
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return domain.PointsRule{}, domain.ErrInvalidWindow
	}

	rule := domain.PointsRule{
		ID:                s.node.Generate(),
		Name:              req.Name,
		RuleType:          ruleType,
		Calculation:       calc,
		Value:             req.Value,
		MinimumAmount:     req.MinimumAmount,
		MaxPerTransaction: req.MaxPerTransaction,
		StartAt:           req.StartAt,
		EndAt:             req.EndAt,
		Active:            true,
	}
	if err := s.rules.Create(ctx, &rule); err != nil {
		return domain.PointsRule{}, err
	}

	s.logger.Info("points rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("rule_type", rule.RuleType),
		zap.String("calculation", rule.Calculation),
	)
	return rule, nil
}

func (s *ruleService) Update(ctx context.Context, req domain.UpdateRuleRequest) (domain.PointsRule, error) {
	existing, err := s.rules.FindOne(ctx, &domain.PointsRule{ID: parseID(req.RuleID)})
	if err != nil {
		return domain.PointsRule{}, err
	}
	if existing == nil {
		return domain.PointsRule{}, domain.ErrRuleNotFound
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Value != nil {
		if !req.Value.IsPositive() {
			return domain.PointsRule{}, domain.ErrInvalidValue
		}
		updates["value"] = *req.Value
	}
	if req.MinimumAmount != nil {
		if req.MinimumAmount.IsNegative() {
			return domain.PointsRule{}, domain.ErrInvalidValue
		}
		updates["minimum_amount"] = *req.MinimumAmount
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return *existing, nil
	}

	if err := s.rules.Update(ctx, req.RuleID, updates); err != nil {
		return domain.PointsRule{}, err
	}
	updated, err := s.rules.FindOne(ctx, &domain.PointsRule{ID: existing.ID})
	if err != nil {
		return domain.PointsRule{}, err
	}
	return *updated, nil
}

func (s *ruleService) GetByID(ctx context.Context, id string) (domain.PointsRule, error) {
	rule, err := s.rules.FindOne(ctx, &domain.PointsRule{ID: parseID(id)})
	if err != nil {
		return domain.PointsRule{}, err
	}
	if rule == nil {
		return domain.PointsRule{}, domain.ErrRuleNotFound
	}
	return *rule, nil
}

func (s *ruleService) List(ctx context.Context) ([]domain.PointsRule, error) {
	rows, err := s.rules.Find(ctx, &domain.PointsRule{}, option.WithOrder("created_at ASC, id ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.PointsRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

func (s *ruleService) FindActiveByType(ctx context.Context, ruleType string) (*domain.PointsRule, error) {
	return s.rules.FindOne(ctx,
		&domain.PointsRule{RuleType: ruleType, Active: true},
		option.WithOrder("created_at ASC, id ASC"),
	)
}

func parseID(raw string) snowflake.ID {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}
