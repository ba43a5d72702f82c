package app

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/metrics"
)

// NewClient is the input to CreateClient.
type NewClient struct {
	Name   string              `json:"name" validate:"required"`
	Config domain.ClientConfig `json:"client_config"`
}

// PlanUpdate changes the licence block of an existing client.
type PlanUpdate struct {
	Plan            domain.Plan `json:"plan" validate:"required,oneof=trial premium enterprise"`
	ContractEndDate time.Time   `json:"contract_end_date" validate:"required"`
	MaxLicences     int         `json:"max_licences" validate:"gt=0"`
}

// NewBatch is the input to CreateBatch.
type NewBatch struct {
	Name      string    `json:"batch_name" validate:"required"`
	ClientID  string    `json:"client_id" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// ClientFilter narrows ListClients. Empty fields match everything.
type ClientFilter struct {
	Status domain.ClientStatus
	Search string
}

// Seats reports licence usage of a client.
type Seats struct {
	Used int `json:"used"`
	Max  int `json:"max"`
}

// TenantService manages clients, their licences and batches.
type TenantService struct {
	*env
}

func (s *TenantService) CreateClient(ctx context.Context, actor domain.Identity, nc NewClient) (domain.Client, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Client{}, err
	}
	if err := domain.ValidateStruct(nc); err != nil {
		return domain.Client{}, err
	}
	now := s.now().UTC()
	if !nc.Config.ContractEndDate.After(now) {
		return domain.Client{}, domain.NewValidationError(domain.FieldError{
			Field: "client_config.contract_end_date", Error: "contract_end_date must be in the future",
		})
	}
	status := domain.ClientActive
	if nc.Config.Plan == domain.PlanTrial {
		status = domain.ClientTrial
	}
	client := domain.Client{
		ID:        uuid.NewString(),
		Name:      nc.Name,
		Status:    status,
		Config:    nc.Config,
		CreatedAt: now,
	}
	if err := s.repos.Clients.CreateClient(ctx, client); err != nil {
		return domain.Client{}, err
	}
	s.log.Info("client created", zap.String("client_id", client.ID), zap.String("plan", string(client.Config.Plan)))
	return client, nil
}

// GetClient returns a client visible to actor.
func (s *TenantService) GetClient(ctx context.Context, actor domain.Identity, clientID string) (domain.Client, error) {
	if err := guard(actor, ActionRead, Target{Kind: TargetClient, ClientID: clientID}); err != nil {
		return domain.Client{}, err
	}
	return s.repos.Clients.GetClient(ctx, clientID)
}

// UpdateClientPlan replaces the licence terms. Lowering max_licences below the
// seats currently in use fails with ErrCapacity.
func (s *TenantService) UpdateClientPlan(ctx context.Context, actor domain.Identity, clientID string, pu PlanUpdate) (domain.Client, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Client{}, err
	}
	if err := domain.ValidateStruct(pu); err != nil {
		return domain.Client{}, err
	}
	unlock := s.locks.lock(clientKey(clientID))
	defer unlock()

	client, err := s.repos.Clients.GetClient(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	used, err := activeSeats(ctx, s.repos.Users, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	if pu.MaxLicences < used {
		metrics.CapacityRejections.Inc()
		return domain.Client{}, domain.NewError(domain.ErrCapacity, "client %s has %d seats in use, cannot lower limit to %d", clientID, used, pu.MaxLicences)
	}
	client.Config.Plan = pu.Plan
	client.Config.ContractEndDate = pu.ContractEndDate
	client.Config.MaxLicences = pu.MaxLicences
	if client.Status != domain.ClientInactive {
		client.Status = domain.ClientActive
		if pu.Plan == domain.PlanTrial {
			client.Status = domain.ClientTrial
		}
	}
	return s.repos.Clients.UpdateClient(ctx, client)
}

// AddUserToClient assigns a seat in clientID to userID. The seat check and the
// write happen under the client's lock so concurrent additions cannot
// oversubscribe the licence.
func (s *TenantService) AddUserToClient(ctx context.Context, actor domain.Identity, clientID, userID string) (domain.User, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}
	unlockClient := s.locks.lock(clientKey(clientID))
	defer unlockClient()
	unlockUser := s.locks.lock(userKey(userID))
	defer unlockUser()

	client, err := s.repos.Clients.GetClient(ctx, clientID)
	if err != nil {
		return domain.User{}, err
	}
	if !client.Status.Usable() {
		return domain.User{}, domain.NewError(domain.ErrState, "client %s is inactive", clientID)
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
	if user.CurrentClientID != "" && user.CurrentClientID != clientID {
		user.BatchID = ""
	}
	user.CurrentClientID = clientID
	user.LastUsedClientID = clientID
	if user.DefaultClientID == "" {
		user.DefaultClientID = clientID
	}
	user.UpdatedAt = s.now().UTC()
	updated, err := s.repos.Users.UpdateUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("user added to client", zap.String("client_id", clientID), zap.String("user_id", userID))
	return updated, nil
}

// SeatUsage reports how many licences of clientID are taken.
func (s *TenantService) SeatUsage(ctx context.Context, actor domain.Identity, clientID string) (Seats, error) {
	if err := guard(actor, ActionRead, Target{Kind: TargetClient, ClientID: clientID}); err != nil {
		return Seats{}, err
	}
	client, err := s.repos.Clients.GetClient(ctx, clientID)
	if err != nil {
		return Seats{}, err
	}
	used, err := activeSeats(ctx, s.repos.Users, clientID)
	if err != nil {
		return Seats{}, err
	}
	return Seats{Used: used, Max: client.Config.MaxLicences}, nil
}

// DeactivateClient marks the client inactive and retires its active
// assessments. Calling it again is a no-op.
func (s *TenantService) DeactivateClient(ctx context.Context, actor domain.Identity, clientID string) error {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	return s.deactivate(ctx, clientID)
}

func (s *TenantService) deactivate(ctx context.Context, clientID string) error {
	unlock := s.locks.lock(clientKey(clientID))
	client, err := s.repos.Clients.GetClient(ctx, clientID)
	if err != nil {
		unlock()
		return err
	}
	if client.Status != domain.ClientInactive {
		now := s.now().UTC()
		client.Status = domain.ClientInactive
		client.DeactivatedAt = &now
		if _, err := s.repos.Clients.UpdateClient(ctx, client); err != nil {
			unlock()
			return err
		}
		s.log.Info("client deactivated", zap.String("client_id", clientID))
	}
	unlock()

	// Retire after releasing the client lock; retiring takes assessment locks
	// and a second call retires anything the first one missed.
	active := AssessmentQuery{ClientID: clientID, Status: domain.AssessmentActive}
	for a, err := range s.assessments(ctx, active) {
		if err != nil {
			return err
		}
		if _, err := retireAssessment(ctx, s.env, a.ID); err != nil && !isState(err) {
			return err
		}
	}
	return nil
}

// ExpireContracts deactivates every non-inactive client whose contract ended
// before now and returns how many were deactivated.
func (s *TenantService) ExpireContracts(ctx context.Context, now time.Time) (int, error) {
	var expired []string
	for _, status := range []domain.ClientStatus{domain.ClientActive, domain.ClientTrial} {
		seq := paginate(ctx, s.pageSize,
			func(ctx context.Context, after *Cursor, limit int) ([]domain.Client, error) {
				return s.repos.Clients.QueryClients(ctx, ClientQuery{Status: status, After: after, Limit: limit})
			},
			clientCursor,
			func(c domain.Client) bool { return c.Config.ContractEndDate.Before(now) },
		)
		for c, err := range seq {
			if err != nil {
				return 0, err
			}
			expired = append(expired, c.ID)
		}
	}
	for _, id := range expired {
		if err := s.deactivate(ctx, id); err != nil {
			return 0, err
		}
	}
	if len(expired) > 0 {
		s.log.Info("contracts expired", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// ListClients is a lazy listing, newest first. Non-admins only see their own
// client.
func (s *TenantService) ListClients(ctx context.Context, actor domain.Identity, f ClientFilter) iter.Seq2[domain.Client, error] {
	if actor.Role != domain.RoleAdmin {
		return func(yield func(domain.Client, error) bool) {
			if actor.ClientID == "" {
				return
			}
			c, err := s.GetClient(ctx, actor, actor.ClientID)
			if err != nil {
				yield(domain.Client{}, err)
				return
			}
			if (ClientQuery{Status: f.Status, Search: f.Search}).Matches(c) {
				yield(c, nil)
			}
		}
	}
	return paginate(ctx, s.pageSize,
		func(ctx context.Context, after *Cursor, limit int) ([]domain.Client, error) {
			return s.repos.Clients.QueryClients(ctx, ClientQuery{Status: f.Status, Search: f.Search, After: after, Limit: limit})
		},
		clientCursor, nil)
}

func (s *TenantService) CreateBatch(ctx context.Context, actor domain.Identity, nb NewBatch) (domain.Batch, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.Batch{}, err
	}
	if err := domain.ValidateStruct(nb); err != nil {
		return domain.Batch{}, err
	}
	if !nb.EndDate.After(nb.StartDate) {
		return domain.Batch{}, domain.NewValidationError(domain.FieldError{Field: "end_date", Error: "end_date must be after start_date"})
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetBatch, ClientID: nb.ClientID}); err != nil {
		return domain.Batch{}, err
	}
	if _, err := s.repos.Clients.GetClient(ctx, nb.ClientID); err != nil {
		return domain.Batch{}, err
	}
	batch := domain.Batch{
		ID:        uuid.NewString(),
		Name:      nb.Name,
		StartDate: nb.StartDate,
		EndDate:   nb.EndDate,
		Status:    domain.BatchActive,
		ClientID:  nb.ClientID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repos.Batches.CreateBatch(ctx, batch); err != nil {
		return domain.Batch{}, err
	}
	return batch, nil
}

func (s *TenantService) ListBatches(ctx context.Context, actor domain.Identity, clientID string) ([]domain.Batch, error) {
	if err := guard(actor, ActionRead, Target{Kind: TargetBatch, ClientID: clientID}); err != nil {
		return nil, err
	}
	return s.repos.Batches.ListBatches(ctx, clientID)
}

// AssignUserToBatch places a user in a batch of their current client.
func (s *TenantService) AssignUserToBatch(ctx context.Context, actor domain.Identity, batchID, userID string) (domain.User, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}
	batch, err := s.repos.Batches.GetBatch(ctx, batchID)
	if err != nil {
		return domain.User{}, err
	}
	if err := guard(actor, ActionWrite, Target{Kind: TargetBatch, ClientID: batch.ClientID}); err != nil {
		return domain.User{}, err
	}
	unlock := s.locks.lock(userKey(userID))
	defer unlock()
	user, err := s.repos.Users.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user.CurrentClientID != batch.ClientID {
		return domain.User{}, domain.NewValidationError(domain.FieldError{
			Field: "batch_id", Error: "batch belongs to a different client than the user",
		})
	}
	user.BatchID = batch.ID
	user.UpdatedAt = s.now().UTC()
	return s.repos.Users.UpdateUser(ctx, user)
}

func (s *TenantService) assessments(ctx context.Context, q AssessmentQuery) iter.Seq2[domain.Assessment, error] {
	return paginate(ctx, s.pageSize,
		func(ctx context.Context, after *Cursor, limit int) ([]domain.Assessment, error) {
			q.After, q.Limit = after, limit
			return s.repos.Assessments.QueryAssessments(ctx, q)
		},
		assessmentCursor, nil)
}

func clientCursor(c domain.Client) Cursor { return Cursor{CreatedAt: c.CreatedAt, ID: c.ID} }

// activeSeats counts active users whose current session client is clientID.
func activeSeats(ctx context.Context, users UserRepository, clientID string) (int, error) {
	list, err := users.ListUsersByClient(ctx, clientID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, u := range list {
		if u.Active {
			n++
		}
	}
	return n, nil
}

// checkSeat fails with ErrCapacity when one more active user would exceed the
// client's licences. Callers hold the client lock.
func checkSeat(ctx context.Context, users UserRepository, client domain.Client) error {
	used, err := activeSeats(ctx, users, client.ID)
	if err != nil {
		return err
	}
	if used+1 > client.Config.MaxLicences {
		metrics.CapacityRejections.Inc()
		return domain.NewError(domain.ErrCapacity, "client %s has no free licences (%d/%d)", client.ID, used, client.Config.MaxLicences)
	}
	return nil
}
