package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/metrics"
)

// Credentials are what a caller presents to Authenticate.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// NewUser contains what is needed to provision an account.
type NewUser struct {
	Email           string      `json:"email" validate:"required,email"`
	Password        string      `json:"password" validate:"required,min=8"`
	Role            domain.Role `json:"role" validate:"required,oneof=student tutor admin"`
	DefaultClientID string      `json:"default_client"`
	DefaultLanguage string      `json:"default_language"`
	MobileNumber    string      `json:"mobile_number" validate:"omitempty,e164"`
}

// IdentityService authenticates users and manages their client context.
type IdentityService struct {
	*env
}

// ProvisionUser creates an account. Only admins may provision.
func (s *IdentityService) ProvisionUser(ctx context.Context, actor domain.Identity, nu NewUser) (domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}
	nu.Email = strings.ToLower(strings.TrimSpace(nu.Email))
	if err := domain.ValidateStruct(nu); err != nil {
		return domain.User{}, err
	}
	if nu.DefaultClientID != "" {
		if _, err := s.repos.Clients.GetClient(ctx, nu.DefaultClientID); err != nil {
			return domain.User{}, err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	lang := nu.DefaultLanguage
	if lang == "" {
		lang = "en"
	}
	now := s.now().UTC()
	user := domain.User{
		ID:              uuid.NewString(),
		Email:           nu.Email,
		MobileNumber:    nu.MobileNumber,
		PasswordHash:    hash,
		Role:            nu.Role,
		DefaultClientID: nu.DefaultClientID,
		DefaultLanguage: lang,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repos.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.User{}, domain.NewValidationError(domain.FieldError{Field: "email", Error: "a user with this email already exists"})
		}
		return domain.User{}, err
	}
	s.log.Info("user provisioned", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Authenticate verifies credentials and opens a session.
func (s *IdentityService) Authenticate(ctx context.Context, creds Credentials) (domain.Identity, error) {
	invalid := domain.NewError(domain.ErrAuth, "invalid credentials")
	user, err := s.repos.Users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(creds.Email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, invalid
		}
		return domain.Identity{}, err
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)) != nil {
		return domain.Identity{}, invalid
	}
	if !user.Active {
		return domain.Identity{}, domain.NewError(domain.ErrAuth, "account is deactivated")
	}

	clientID := user.CurrentClientID
	if clientID == "" && user.Role != domain.RoleStudent {
		clientID, err = s.restoreClient(ctx, user)
		if err != nil {
			return domain.Identity{}, err
		}
	}

	id := domain.Identity{
		SessionID: uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		ClientID:  clientID,
		IssuedAt:  s.now().UTC(),
	}
	if err := s.repos.Sessions.SaveSession(ctx, id); err != nil {
		return domain.Identity{}, err
	}
	s.log.Info("authenticated", zap.String("user_id", user.ID), zap.String("client_id", clientID))
	return id, nil
}

// restoreClient re-enters the last used or default client of a tutor or admin
// at login when it is still usable and has a free seat.
func (s *IdentityService) restoreClient(ctx context.Context, user domain.User) (string, error) {
	for _, candidate := range []string{user.LastUsedClientID, user.DefaultClientID} {
		if candidate == "" {
			continue
		}
		updated, err := s.enterClient(ctx, user.ID, candidate)
		switch {
		case err == nil:
			return updated.CurrentClientID, nil
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrCapacity):
			continue
		default:
			return "", err
		}
	}
	return "", nil
}

// ResolveSession returns the live identity for sessionID.
func (s *IdentityService) ResolveSession(ctx context.Context, sessionID string) (domain.Identity, error) {
	id, err := s.repos.Sessions.LoadSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, domain.NewError(domain.ErrAuth, "session expired")
		}
		return domain.Identity{}, err
	}
	user, err := s.repos.Users.GetUser(ctx, id.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Identity{}, err
	}
	if err != nil || !user.Active {
		s.endSession(ctx, sessionID)
		return domain.Identity{}, domain.NewError(domain.ErrAuth, "session expired")
	}
	if user.CurrentClientID == id.ClientID {
		return id, nil
	}
	// Students follow their assignment. Anyone else lost this session's
	// client through a logout or a switch made elsewhere.
	if user.Role != domain.RoleStudent || user.CurrentClientID == "" {
		s.endSession(ctx, sessionID)
		return domain.Identity{}, domain.NewError(domain.ErrAuth, "client context changed")
	}
	id.ClientID = user.CurrentClientID
	if err := s.repos.Sessions.SaveSession(ctx, id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

func (s *IdentityService) endSession(ctx context.Context, sessionID string) {
	if err := s.repos.Sessions.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("session cleanup failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// SwitchClient moves a tutor or admin into another client. Students are
// pinned to their assigned client and always fail with ErrRole.
func (s *IdentityService) SwitchClient(ctx context.Context, id domain.Identity, targetClientID string) (domain.Identity, error) {
	if id.Role == domain.RoleStudent {
		metrics.AuthzDenials.WithLabelValues("switch_client").Inc()
		return domain.Identity{}, &domain.Error{Kind: domain.ErrRole, Reason: "students cannot switch client"}
	}
	if err := requireRole(id, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.Identity{}, err
	}
	user, err := s.enterClient(ctx, id.UserID, targetClientID)
	if err != nil {
		return domain.Identity{}, err
	}
	id.ClientID = user.CurrentClientID
	if err := s.repos.Sessions.SaveSession(ctx, id); err != nil {
		return domain.Identity{}, err
	}
	s.log.Info("client switched", zap.String("user_id", id.UserID), zap.String("client_id", targetClientID))
	return id, nil
}

// enterClient sets the user's current session client under the target
// client's seat lock so the licence invariant holds.
func (s *IdentityService) enterClient(ctx context.Context, userID, clientID string) (domain.User, error) {
	unlockClient := s.locks.lock(clientKey(clientID))
	defer unlockClient()
	unlockUser := s.locks.lock(userKey(userID))
	defer unlockUser()

	client, err := s.repos.Clients.GetClient(ctx, clientID)
	if err != nil {
		return domain.User{}, err
	}
	if !client.Status.Usable() {
		return domain.User{}, domain.NewError(domain.ErrNotFound, "client %s is inactive", clientID)
	}
	user, err := s.repos.Users.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user.CurrentClientID == clientID {
		return user, nil
	}
	if user.Active {
		if err := checkSeat(ctx, s.repos.Users, client); err != nil {
			return domain.User{}, err
		}
	}
	user.CurrentClientID = clientID
	user.LastUsedClientID = clientID
	user.UpdatedAt = s.now().UTC()
	return s.repos.Users.UpdateUser(ctx, user)
}

// Logout ends the session. Tutors and admins leave their client context;
// a student's client stays pinned because it is their licensed seat.
func (s *IdentityService) Logout(ctx context.Context, id domain.Identity) error {
	if err := s.repos.Sessions.DeleteSession(ctx, id.SessionID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if id.Role == domain.RoleStudent {
		return nil
	}
	unlock := s.locks.lock(userKey(id.UserID))
	defer unlock()
	user, err := s.repos.Users.GetUser(ctx, id.UserID)
	if err != nil {
		return err
	}
	if user.CurrentClientID == "" {
		return nil
	}
	user.LastUsedClientID = user.CurrentClientID
	user.CurrentClientID = ""
	user.UpdatedAt = s.now().UTC()
	_, err = s.repos.Users.UpdateUser(ctx, user)
	return err
}

// GetUser returns a user record visible to actor.
func (s *IdentityService) GetUser(ctx context.Context, actor domain.Identity, userID string) (domain.User, error) {
	user, err := s.repos.Users.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetUser, ClientID: user.CurrentClientID, OwnerID: user.ID}); err != nil {
		return domain.User{}, err
	}
	user.PasswordHash = nil
	return user, nil
}

// DeactivateUser marks an account inactive, freeing its seat. Idempotent.
func (s *IdentityService) DeactivateUser(ctx context.Context, actor domain.Identity, userID string) error {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	unlock := s.locks.lock(userKey(userID))
	defer unlock()
	user, err := s.repos.Users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Active {
		return nil
	}
	user.Active = false
	user.UpdatedAt = s.now().UTC()
	if _, err := s.repos.Users.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.log.Info("user deactivated", zap.String("user_id", userID))
	return nil
}
