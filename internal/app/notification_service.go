package app

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"skillyhead-service/internal/domain"
)

// NewNotification is a message a tutor posts to a batch.
type NewNotification struct {
	BatchID    string                        `json:"batch_id" validate:"required"`
	Message    string                        `json:"message" validate:"required,max=1000"`
	Visibility domain.NotificationVisibility `json:"visibility" validate:"omitempty,oneof=visible hidden"`
}

// NotificationService stores tutor notices. Delivery is left to the caller.
type NotificationService struct {
	*env
}

func (s *NotificationService) Post(ctx context.Context, actor domain.Identity, nn NewNotification) (domain.TutorNotification, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.TutorNotification{}, err
	}
	nn.Message = strings.TrimSpace(nn.Message)
	if err := domain.ValidateStruct(nn); err != nil {
		return domain.TutorNotification{}, err
	}
	batch, err := s.repos.Batches.GetBatch(ctx, nn.BatchID)
	if err != nil {
		return domain.TutorNotification{}, err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetNotification, ClientID: batch.ClientID}); err != nil {
		return domain.TutorNotification{}, err
	}
	if nn.Visibility == "" {
		nn.Visibility = domain.NotificationVisible
	}
	n := domain.TutorNotification{
		ID:         uuid.NewString(),
		ClientID:   batch.ClientID,
		BatchID:    batch.ID,
		Message:    nn.Message,
		Visibility: nn.Visibility,
		CreatedBy:  actor.UserID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repos.Notifications.CreateNotification(ctx, n); err != nil {
		return domain.TutorNotification{}, err
	}
	return n, nil
}

// List returns the notices of the caller's client, newest first. Students
// only see visible notices of their own batch.
func (s *NotificationService) List(ctx context.Context, actor domain.Identity) ([]domain.TutorNotification, error) {
	if err := guard(actor, ActionRead, Target{Kind: TargetNotification, ClientID: actor.ClientID}); err != nil {
		return nil, err
	}
	all, err := s.repos.Notifications.ListNotifications(ctx, actor.ClientID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleStudent {
		user, err := s.repos.Users.GetUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		all = slices.DeleteFunc(all, func(n domain.TutorNotification) bool {
			return n.Visibility != domain.NotificationVisible || n.BatchID != user.BatchID
		})
	}
	slices.SortFunc(all, func(a, b domain.TutorNotification) int {
		if NewestFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID) {
			return -1
		}
		return 1
	})
	return all, nil
}
