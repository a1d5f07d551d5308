package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/smallbiznis/posbridge/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("profile.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.SaveProfileRequest) (domain.Profile, error) {
	now := s.clock.Now().UTC()
	profile := domain.Profile{
		ID:        s.genID.Generate(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := apply(&profile, req); err != nil {
		return domain.Profile{}, err
	}
	if err := s.repo.Insert(ctx, s.db, &profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.SaveProfileRequest) (domain.Profile, error) {
	profile, err := s.Get(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if strings.TrimSpace(req.Name) == "" {
		req.Name = profile.Name
	}
	if strings.TrimSpace(req.ProviderType) == "" {
		req.ProviderType = profile.ProviderType
	}
	if err := apply(&profile, req); err != nil {
		return domain.Profile{}, err
	}
	profile.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, s.db, &profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

func apply(profile *domain.Profile, req domain.SaveProfileRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ErrInvalidName
	}
	providerType := strings.ToUpper(strings.TrimSpace(req.ProviderType))
	switch providerType {
	case config.ProviderSTB, config.ProviderGMT, config.ProviderWIC:
	default:
		return domain.ErrInvalidProvider
	}

	profile.Name = name
	profile.ProviderType = providerType
	if req.IsActive != nil {
		profile.IsActive = *req.IsActive
	}
	profile.PosUserID = strings.TrimSpace(req.PosUserID)
	profile.PosCashboxID = strings.TrimSpace(req.PosCashboxID)
	setIfPresent(&profile.ManualToken, req.ManualToken)
	setIfPresent(&profile.LoginEmail, req.LoginEmail)
	setIfPresent(&profile.LoginPhone, req.LoginPhone)
	setIfPresent(&profile.LoginPassword, req.LoginPassword)
	setIfPresent(&profile.TotpSecret, req.TotpSecret)
	return nil
}

func setIfPresent(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func (s *Service) Get(ctx context.Context, id string) (domain.Profile, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Profile{}, domain.ErrInvalidID
	}
	profile, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Profile{}, err
	}
	if profile == nil {
		return domain.Profile{}, domain.ErrNotFound
	}
	return *profile, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Profile, error) {
	return s.repo.List(ctx, s.db, false)
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Profile, error) {
	return s.repo.List(ctx, s.db, true)
}

func (s *Service) MarkSynced(ctx context.Context, id string) error {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}
	return s.repo.UpdateLastSync(ctx, s.db, parsed, s.clock.Now().UTC())
}

// SaveToken stores a session token as the profile's manual token and
// stamps its last sync time.
func (s *Service) SaveToken(ctx context.Context, id string, token string) error {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}
	return s.repo.UpdateToken(ctx, s.db, parsed, token, s.clock.Now().UTC())
}
