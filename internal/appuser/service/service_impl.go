package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/appuser/domain"
	"github.com/smallbiznis/posbridge/internal/appuser/password"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/smallbiznis/posbridge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLength = 6

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Clock  clock.Clock
	Config config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
	auth  config.AuthConfig
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("appuser.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
		auth:  p.Config.Auth,
	}
}

// Authenticate checks the credentials and stamps the login time. Unknown
// users and wrong passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, username, secret string) (domain.AppUser, error) {
	user, err := s.repo.FindByUsername(ctx, s.db, username)
	if err != nil {
		return domain.AppUser{}, err
	}
	if user == nil || !password.Verify(secret, user.PasswordHash) {
		return domain.AppUser{}, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.AppUser{}, domain.ErrUserInactive
	}

	now := s.clock.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, s.db, user.ID, now); err != nil {
		return domain.AppUser{}, err
	}
	user.LastLoginAt = &now
	user.UpdatedAt = now
	return *user, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.AppUser, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.AppUser{}, domain.ErrInvalidID
	}
	user, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.AppUser{}, err
	}
	if user == nil {
		return domain.AppUser{}, domain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) List(ctx context.Context) ([]domain.AppUser, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) Create(ctx context.Context, req domain.CreateUserRequest) (domain.AppUser, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || len(username) > 64 {
		return domain.AppUser{}, domain.ErrInvalidUsername
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return domain.AppUser{}, domain.ErrInvalidRole
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return domain.AppUser{}, err
	}

	now := s.clock.Now().UTC()
	user := domain.AppUser{
		ID:           s.genID.Generate(),
		Username:     username,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.ActorID != 0 {
		actor := req.ActorID
		user.CreatedBy = &actor
		user.UpdatedBy = &actor
	}

	existing, err := s.repo.FindByUsername(ctx, s.db, username)
	if err != nil {
		return domain.AppUser{}, err
	}
	if existing != nil {
		return domain.AppUser{}, domain.ErrUsernameTaken
	}
	if err := s.repo.Insert(ctx, s.db, &user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.AppUser{}, domain.ErrUsernameTaken
		}
		return domain.AppUser{}, err
	}
	s.log.Info("app user created",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// Update changes role, status or display name. A password set here is an
// administrative reset, so the user must pick a new one at next login.
func (s *Service) Update(ctx context.Context, id string, req domain.UpdateUserRequest) (domain.AppUser, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return domain.AppUser{}, err
	}
	wasActiveAdmin := user.IsActive && user.Role == domain.RoleAdmin

	if req.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*req.DisplayName)
	}
	if req.Role != nil {
		role, ok := domain.ParseRole(*req.Role)
		if !ok {
			return domain.AppUser{}, domain.ErrInvalidRole
		}
		user.Role = role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Password != nil {
		hash, err := s.hash(*req.Password)
		if err != nil {
			return domain.AppUser{}, err
		}
		user.PasswordHash = hash
		user.MustChangePassword = true
	}
	if req.ActorID != 0 {
		actor := req.ActorID
		user.UpdatedBy = &actor
	}
	user.UpdatedAt = s.clock.Now().UTC()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if wasActiveAdmin && !(user.IsActive && user.Role == domain.RoleAdmin) {
			if err := s.requireOtherAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, tx, &user)
	})
	if err != nil {
		return domain.AppUser{}, err
	}
	return user, nil
}

// ChangePassword is the self-service change; it clears the forced change flag.
func (s *Service) ChangePassword(ctx context.Context, id string, current, next string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !password.Verify(current, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}
	if current == next {
		return domain.ErrInvalidPassword
	}
	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.MustChangePassword = false
	user.UpdatedBy = &user.ID
	user.UpdatedAt = s.clock.Now().UTC()
	return s.repo.Update(ctx, s.db, &user)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if user.IsActive && user.Role == domain.RoleAdmin {
			if err := s.requireOtherAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return s.repo.Delete(ctx, tx, user.ID)
	})
}

// EnsureAdmin seeds the bootstrap administrator when no active admin
// exists. The seeded account must change its password at first login.
func (s *Service) EnsureAdmin(ctx context.Context) error {
	count, err := s.repo.CountActiveAdmins(ctx, s.db)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	username := strings.TrimSpace(s.auth.BootstrapUsername)
	if username == "" {
		username = "admin"
	}
	secret := s.auth.BootstrapPassword
	if secret == "" {
		secret = "admin"
	}
	hash := secret
	if !password.IsHash(secret) {
		hash, err = password.Hash(secret, s.auth.PasswordCost)
		if err != nil {
			return err
		}
	}

	now := s.clock.Now().UTC()
	existing, err := s.repo.FindByUsername(ctx, s.db, username)
	if err != nil {
		return err
	}
	if existing != nil {
		existing.Role = domain.RoleAdmin
		existing.IsActive = true
		existing.PasswordHash = hash
		existing.MustChangePassword = true
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, existing); err != nil {
			return err
		}
	} else {
		admin := domain.AppUser{
			ID:                 s.genID.Generate(),
			Username:           username,
			DisplayName:        "Administrator",
			PasswordHash:       hash,
			Role:               domain.RoleAdmin,
			IsActive:           true,
			MustChangePassword: true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.Insert(ctx, s.db, &admin); err != nil {
			return err
		}
	}
	s.log.Warn("No active administrator found; bootstrap admin seeded",
		zap.String("username", username),
	)
	return nil
}

func (s *Service) requireOtherAdmin(ctx context.Context, tx *gorm.DB) error {
	count, err := s.repo.CountActiveAdmins(ctx, tx)
	if err != nil {
		return err
	}
	if count <= 1 {
		return domain.ErrLastAdmin
	}
	return nil
}

func (s *Service) hash(secret string) (string, error) {
	if len(strings.TrimSpace(secret)) < minPasswordLength {
		return "", domain.ErrInvalidPassword
	}
	return password.Hash(secret, s.auth.PasswordCost)
}
