package app

import (
	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/metrics"
)

type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

type TargetKind string

const (
	TargetClient       TargetKind = "client"
	TargetBatch        TargetKind = "batch"
	TargetUser         TargetKind = "user"
	TargetQuestion     TargetKind = "question"
	TargetAssessment   TargetKind = "assessment"
	TargetSubmission   TargetKind = "submission"
	TargetNotification TargetKind = "notification"
)

// Target describes what an action touches. ClientID is empty for resources
// that are not scoped to a client; OwnerID is the owning user where one exists.
type Target struct {
	Kind     TargetKind
	ClientID string
	OwnerID  string
}

// Decision is the outcome of Authorize; Reason is set when denied.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Authorize evaluates the access rules in order:
//  1. admins may do anything in any client;
//  2. targets outside the identity's current client are denied to everyone else;
//  3. tutors read and write inside their client, and read client-less targets;
//  4. students read questions, assessments, batches and their client, and
//     read/write only their own submissions and user record.
func Authorize(id domain.Identity, action Action, target Target) Decision {
	switch id.Role {
	case domain.RoleAdmin:
		return allow()
	case domain.RoleTutor, domain.RoleStudent:
	default:
		return deny("unknown role")
	}

	if target.ClientID == "" {
		if id.Role == domain.RoleTutor && action == ActionRead {
			return allow()
		}
		if target.Kind == TargetUser && target.OwnerID == id.UserID && action == ActionRead {
			return allow()
		}
		return deny("target is not scoped to the current client")
	}
	if id.ClientID == "" || target.ClientID != id.ClientID {
		return deny("target belongs to another client")
	}

	if id.Role == domain.RoleTutor {
		return allow()
	}

	switch target.Kind {
	case TargetQuestion, TargetAssessment, TargetBatch, TargetClient, TargetNotification:
		if action == ActionRead {
			return allow()
		}
		return deny("students have read-only access to " + string(target.Kind) + "s")
	case TargetSubmission, TargetUser:
		if target.OwnerID == id.UserID {
			return allow()
		}
		return deny("students may only access their own " + string(target.Kind))
	}
	return deny("students may not access " + string(target.Kind) + "s")
}

// guard turns a denied decision into an ErrAuth.
func guard(id domain.Identity, action Action, target Target) error {
	d := Authorize(id, action, target)
	if d.Allowed {
		return nil
	}
	metrics.AuthzDenials.WithLabelValues(string(target.Kind)).Inc()
	return domain.NewError(domain.ErrAuth, "%s %s: %s", action, target.Kind, d.Reason)
}

// requireRole fails with ErrRole unless the identity has one of roles.
func requireRole(id domain.Identity, roles ...domain.Role) error {
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	metrics.AuthzDenials.WithLabelValues("role").Inc()
	return &domain.Error{Kind: domain.ErrRole, Reason: "role " + string(id.Role) + " may not perform this operation"}
}
