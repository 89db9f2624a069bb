package users

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/internal/actor"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/pkg/auth"
	"github.com/stocklinehq/stockline-backend/pkg/config"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
	"github.com/stocklinehq/stockline-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// loginLimiter is the slice of the redis client used to throttle login
// attempts. Nil-able so tests can run without a broker.
type loginLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// LoginInput carries one authentication attempt.
type LoginInput struct {
	Username string
	Password string
	ClientIP string
}

// LoginResult is a successful authentication.
type LoginResult struct {
	Token       string    `json:"token"`
	User        Profile   `json:"user"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Profile is the public view of a user.
type Profile struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	Roles       []string   `json:"roles"`
}

// CreateUserInput registers an operator account.
type CreateUserInput struct {
	Username string
	Password string
	Roles    []string
	Actor    actor.Actor
}

// Service manages identities, sessions and RBAC.
type Service interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	Me(ctx context.Context, userID uuid.UUID) (*Profile, error)
	ResolvePermissions(ctx context.Context, userID uuid.UUID) ([]string, error)

	CreateUser(ctx context.Context, input CreateUserInput) (*Profile, error)
	ListUsers(ctx context.Context) ([]Profile, error)
	SetUserActive(ctx context.Context, userID uuid.UUID, active bool, act actor.Actor) error
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string, act actor.Actor) error
	RevokeRole(ctx context.Context, userID uuid.UUID, roleName string, act actor.Actor) error

	ListRoles(ctx context.Context) ([]models.Role, error)
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	RolePermissions(ctx context.Context, roleName string) ([]models.Permission, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	audit   *auditlog.Recorder
	limiter loginLimiter
	jwtCfg  config.JWTConfig
	pwCfg   config.PasswordConfig
	rlCfg   config.AuthRateLimitConfig
	now     func() time.Time
}

// NewService builds the user service. The limiter may be nil, which
// disables login throttling.
func NewService(
	repo Repository,
	tx txRunner,
	audit *auditlog.Recorder,
	limiter loginLimiter,
	jwtCfg config.JWTConfig,
	pwCfg config.PasswordConfig,
	rlCfg config.AuthRateLimitConfig,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if jwtCfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		audit:   audit,
		limiter: limiter,
		jwtCfg:  jwtCfg,
		pwCfg:   pwCfg,
		rlCfg:   rlCfg,
		now:     time.Now,
	}, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if input.Username == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username and password required")
	}
	if err := s.allowLogin(ctx, input); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUserByUsername(ctx, input.Username)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	now := s.now()
	token, err := auth.MintAccessToken(s.jwtCfg, now, auth.AccessTokenPayload{
		UserID:   user.ID,
		Username: user.Username,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token")
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record login time")
	}

	profile, err := s.profile(ctx, user)
	if err != nil {
		return nil, err
	}
	permissions, err := s.ResolvePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:       token,
		User:        *profile,
		Permissions: permissions,
		ExpiresAt:   now.Add(s.jwtCfg.Expiration()),
	}, nil
}

func (s *service) allowLogin(ctx context.Context, input LoginInput) error {
	if s.limiter == nil {
		return nil
	}
	allowed, _, err := s.limiter.FixedWindowAllow(ctx,
		"login:user:"+input.Username, int64(s.rlCfg.LoginAccountLimit), s.rlCfg.LoginWindow)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit check")
	}
	if !allowed {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts for this account")
	}
	if input.ClientIP != "" {
		allowed, _, err = s.limiter.FixedWindowAllow(ctx,
			"login:ip:"+input.ClientIP, int64(s.rlCfg.LoginIPLimit), s.rlCfg.LoginWindow)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit check")
		}
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts from this address")
		}
	}
	return nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return s.profile(ctx, user)
}

func (s *service) ResolvePermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	permissions, err := s.repo.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve permissions")
	}
	return permissions, nil
}

func (s *service) CreateUser(ctx context.Context, input CreateUserInput) (*Profile, error) {
	if input.Username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username required")
	}
	if len(input.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := security.HashPassword(input.Password, s.pwCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{Username: input.Username, PasswordHash: hash, IsActive: true}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateUser(ctx, user); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "username %s already exists", input.Username)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		for _, roleName := range input.Roles {
			role, err := repo.FindRoleByName(ctx, roleName)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.Newf(pkgerrors.CodeNotFound, "role %s not found", roleName)
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load role")
			}
			if err := repo.AssignRole(ctx, user.ID, role.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign role")
			}
		}
		return s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "users",
			Action:        "create",
			Entity:        "user",
			EntityID:      &user.ID,
			Detail:        fmt.Sprintf("username=%s roles=%v", user.Username, input.Roles),
			Operator:      input.Actor.Username,
			RequestSource: input.Actor.RequestSource,
			TraceID:       input.Actor.TraceID,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, user)
}

func (s *service) ListUsers(ctx context.Context) ([]Profile, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	profiles := make([]Profile, 0, len(users))
	for i := range users {
		profile, err := s.profile(ctx, &users[i])
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *profile)
	}
	return profiles, nil
}

func (s *service) SetUserActive(ctx context.Context, userID uuid.UUID, active bool, act actor.Actor) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.FindUser(ctx, userID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		user.IsActive = active
		if err := repo.SaveUser(ctx, user); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
		}
		return s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "users",
			Action:        "set_active",
			Entity:        "user",
			EntityID:      &user.ID,
			Detail:        fmt.Sprintf("username=%s active=%t", user.Username, active),
			Operator:      act.Username,
			RequestSource: act.RequestSource,
			TraceID:       act.TraceID,
		})
	})
}

func (s *service) AssignRole(ctx context.Context, userID uuid.UUID, roleName string, act actor.Actor) error {
	return s.mutateRole(ctx, userID, roleName, act, "assign_role", func(repo Repository, roleID uuid.UUID) error {
		if err := repo.AssignRole(ctx, userID, roleID); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "role already assigned")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign role")
		}
		return nil
	})
}

func (s *service) RevokeRole(ctx context.Context, userID uuid.UUID, roleName string, act actor.Actor) error {
	return s.mutateRole(ctx, userID, roleName, act, "revoke_role", func(repo Repository, roleID uuid.UUID) error {
		if err := repo.RevokeRole(ctx, userID, roleID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke role")
		}
		return nil
	})
}

func (s *service) mutateRole(ctx context.Context, userID uuid.UUID, roleName string, act actor.Actor, action string, fn func(repo Repository, roleID uuid.UUID) error) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.FindUser(ctx, userID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		role, err := repo.FindRoleByName(ctx, roleName)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "role %s not found", roleName)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load role")
		}
		if err := fn(repo, role.ID); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "users",
			Action:        action,
			Entity:        "user",
			EntityID:      &user.ID,
			Detail:        fmt.Sprintf("username=%s role=%s", user.Username, roleName),
			Operator:      act.Username,
			RequestSource: act.RequestSource,
			TraceID:       act.TraceID,
		})
	})
}

func (s *service) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list roles")
	}
	return roles, nil
}

func (s *service) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	permissions, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list permissions")
	}
	return permissions, nil
}

func (s *service) RolePermissions(ctx context.Context, roleName string) ([]models.Permission, error) {
	role, err := s.repo.FindRoleByName(ctx, roleName)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "role %s not found", roleName)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load role")
	}
	permissions, err := s.repo.PermissionsForRole(ctx, role.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list role permissions")
	}
	return permissions, nil
}

func (s *service) profile(ctx context.Context, user *models.User) (*Profile, error) {
	roles, err := s.repo.RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user roles")
	}
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return &Profile{
		ID:          user.ID,
		Username:    user.Username,
		IsActive:    user.IsActive,
		LastLoginAt: user.LastLoginAt,
		Roles:       names,
	}, nil
}
