package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fabriko/fabriko/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("plan.service"),
		repo: p.Repo,
	}
}

func (s *Service) List(ctx context.Context) ([]domain.Response, error) {
	items, err := s.repo.FindActive(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for _, item := range items {
		resp = append(resp, toResponse(&item))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, planID.Int64())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	resp := toResponse(item)
	return &resp, nil
}

func toResponse(p *domain.Plan) domain.Response {
	resp := domain.Response{
		ID:                snowflake.ID(p.ID).String(),
		Code:              p.Code,
		Name:              p.Name,
		Description:       p.Description,
		MonthlyPriceCents: p.MonthlyPriceCents,
		YearlyPriceCents:  p.YearlyPriceCents,
		Currency:          p.Currency,
		SortOrder:         p.SortOrder,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if len(p.Features) > 0 {
		resp.Features = map[string]any(p.Features)
	}
	if len(p.Limits) > 0 {
		resp.Limits = map[string]any(p.Limits)
	}
	return resp
}
