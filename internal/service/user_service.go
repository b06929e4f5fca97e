package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"fotoreg/api/internal/apperr"
	"fotoreg/api/internal/audit"
	"fotoreg/api/internal/ids"
	"fotoreg/api/internal/models"
	"fotoreg/api/internal/repository"
	"fotoreg/api/internal/security"
)

// UserStore is the user persistence surface the admin flows need.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	List(ctx context.Context, filter repository.UserFilter, limit, offset int) ([]models.User, int, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
	Update(ctx context.Context, id string, update repository.UserUpdate) error
	SoftDelete(ctx context.Context, id string) error
}

// UserSessionStore lets admin actions revoke a user's sessions.
type UserSessionStore interface {
	InvalidateAllForUser(ctx context.Context, userID string) error
}

type UserService struct {
	users    UserStore
	sessions UserSessionStore
	audit    AuditRecorder
	log      zerolog.Logger
}

func NewUserService(users UserStore, sessions UserSessionStore, recorder AuditRecorder, log zerolog.Logger) *UserService {
	return &UserService{
		users:    users,
		sessions: sessions,
		audit:    recorder,
		log:      log.With().Str("component", "users").Logger(),
	}
}

type CreateUserInput struct {
	Username string
	Password string
	Email    string
	FullName string
	Role     models.UserRole
}

// Create registers a new account. Usernames are unique; a duplicate is a
// validation failure, not an internal error.
func (s *UserService) Create(ctx context.Context, actor models.User, input CreateUserInput, ipAddress, userAgent string) (models.User, error) {
	if input.Username == "" || input.Password == "" {
		return models.User{}, apperr.WithMessage(apperr.ErrValidation, "username and password are required")
	}
	if input.Role != models.UserRoleAdmin && input.Role != models.UserRoleOperator {
		return models.User{}, apperr.WithMessage(apperr.ErrValidation, "unknown role")
	}
	if _, err := s.users.FindByUsername(ctx, input.Username); err == nil {
		return models.User{}, apperr.WithMessage(apperr.ErrValidation, "the username is already taken")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, apperr.From(err)
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, apperr.From(err)
	}

	user := models.User{
		ID:           ids.New(),
		Username:     input.Username,
		PasswordHash: hash,
		Email:        input.Email,
		FullName:     input.FullName,
		Role:         input.Role,
		Status:       models.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, apperr.From(err)
	}

	s.audit.Record(ctx, audit.Event{
		UserID:    actor.ID,
		Action:    "user_create",
		TableName: "users",
		RecordID:  user.ID,
		NewValues: map[string]any{
			"username": user.Username,
			"role":     user.Role,
		},
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.ErrNotFound
		}
		return models.User{}, apperr.From(err)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, filter repository.UserFilter, limit, offset int) ([]models.User, int, error) {
	users, total, err := s.users.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, apperr.From(err)
	}
	return users, total, nil
}

// Operators lists every non-deleted operator account, for the admin
// console's assignment and map views.
func (s *UserService) Operators(ctx context.Context) ([]models.User, error) {
	operators, err := s.users.ListByRole(ctx, models.UserRoleOperator)
	if err != nil {
		return nil, apperr.From(err)
	}
	return operators, nil
}

// UserCounts are headline numbers for the admin dashboard.
type UserCounts struct {
	Admins    int
	Operators int
}

func (s *UserService) Stats(ctx context.Context) (UserCounts, error) {
	admins, err := s.users.CountByRole(ctx, models.UserRoleAdmin)
	if err != nil {
		return UserCounts{}, apperr.From(err)
	}
	operators, err := s.users.CountByRole(ctx, models.UserRoleOperator)
	if err != nil {
		return UserCounts{}, apperr.From(err)
	}
	return UserCounts{Admins: admins, Operators: operators}, nil
}

type UpdateUserInput struct {
	Email    *string
	FullName *string
	Role     *models.UserRole
	Status   *models.UserStatus
}

// Update applies a partial profile change and records the before/after
// snapshot in the audit trail. Deactivating a user also revokes every one
// of their sessions.
func (s *UserService) Update(ctx context.Context, actor models.User, id string, input UpdateUserInput, ipAddress, userAgent string) (models.User, error) {
	before, err := s.Get(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	update := repository.UserUpdate{
		Email:    input.Email,
		FullName: input.FullName,
		Role:     input.Role,
		Status:   input.Status,
	}
	if err := s.users.Update(ctx, id, update); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.ErrNotFound
		}
		return models.User{}, apperr.From(err)
	}

	if input.Status != nil && *input.Status != models.UserStatusActive {
		if err := s.sessions.InvalidateAllForUser(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("user_id", id).Msg("session sweep after deactivation failed")
		}
	}

	after, err := s.Get(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	s.audit.Record(ctx, audit.Event{
		UserID:    actor.ID,
		Action:    "user_update",
		TableName: "users",
		RecordID:  id,
		OldValues: userSnapshot(before),
		NewValues: userSnapshot(after),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return after, nil
}

// Delete soft-deletes the account and revokes its sessions. The row stays
// so photos and audit entries keep their attribution.
func (s *UserService) Delete(ctx context.Context, actor models.User, id string, ipAddress, userAgent string) error {
	if actor.ID == id {
		return apperr.WithMessage(apperr.ErrValidation, "you cannot delete your own account")
	}

	before, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.users.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.ErrNotFound
		}
		return apperr.From(err)
	}
	if err := s.sessions.InvalidateAllForUser(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("user_id", id).Msg("session sweep after delete failed")
	}

	s.audit.Record(ctx, audit.Event{
		UserID:    actor.ID,
		Action:    "user_delete",
		TableName: "users",
		RecordID:  id,
		OldValues: userSnapshot(before),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

// ResetPassword sets a new password on the target account and revokes
// every session it holds, forcing a fresh login with the new credential.
func (s *UserService) ResetPassword(ctx context.Context, actor models.User, id, newPassword, ipAddress, userAgent string) error {
	if len(newPassword) < 8 {
		return apperr.WithMessage(apperr.ErrValidation, "the new password must be at least 8 characters")
	}

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return apperr.From(err)
	}
	if err := s.users.Update(ctx, id, repository.UserUpdate{PasswordHash: hash}); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.ErrNotFound
		}
		return apperr.From(err)
	}
	if err := s.sessions.InvalidateAllForUser(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("user_id", id).Msg("session sweep after password reset failed")
	}

	s.audit.Record(ctx, audit.Event{
		UserID:    actor.ID,
		Action:    "reset_password",
		TableName: "users",
		RecordID:  id,
		NewValues: map[string]any{"passwordReset": true},
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
	return nil
}

func userSnapshot(user models.User) map[string]any {
	return map[string]any{
		"username": user.Username,
		"email":    user.Email,
		"fullName": user.FullName,
		"role":     user.Role,
		"status":   user.Status,
	}
}

var _ UserStore = (*repository.UserRepository)(nil)
