package app

import (
	"context"
	"math"

	"skillyhead-service/internal/domain"
)

// StatsService computes dashboard figures.
type StatsService struct {
	*env
}

// Dashboard summarises users, assessments and submissions of a client. The
// average score is the mean partial aggregate over all submissions.
func (s *StatsService) Dashboard(ctx context.Context, actor domain.Identity, clientID string) (domain.DashboardStats, error) {
	if err := requireRole(actor, domain.RoleTutor, domain.RoleAdmin); err != nil {
		return domain.DashboardStats{}, err
	}
	if clientID == "" {
		clientID = actor.ClientID
	}
	if err := guard(actor, ActionRead, Target{Kind: TargetClient, ClientID: clientID}); err != nil {
		return domain.DashboardStats{}, err
	}
	if _, err := s.repos.Clients.GetClient(ctx, clientID); err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.DashboardStats{ClientID: clientID}
	users, err := s.repos.Users.ListUsersByClient(ctx, clientID)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	for _, u := range users {
		if !u.Active {
			continue
		}
		switch u.Role {
		case domain.RoleStudent:
			stats.TotalStudents++
		case domain.RoleTutor:
			stats.TotalTutors++
		}
	}

	var sum float64
	scored := 0
	q := AssessmentQuery{ClientID: clientID}
	seq := paginate(ctx, s.pageSize,
		func(ctx context.Context, after *Cursor, limit int) ([]domain.Assessment, error) {
			q.After, q.Limit = after, limit
			return s.repos.Assessments.QueryAssessments(ctx, q)
		},
		assessmentCursor, nil)
	for a, err := range seq {
		if err != nil {
			return domain.DashboardStats{}, err
		}
		stats.TotalAssessments++
		if a.Status == domain.AssessmentActive {
			stats.ActiveAssessments++
		}
		subs, err := s.repos.Submissions.ListSubmissions(ctx, a.ID)
		if err != nil {
			return domain.DashboardStats{}, err
		}
		for _, sub := range subs {
			stats.TotalSubmissions++
			if !sub.Graded() {
				stats.PendingGrading++
			}
			if len(sub.PendingQuestions()) == len(sub.Results) {
				continue
			}
			score, err := domain.Aggregate(sub, domain.AggregatePartial)
			if err == nil {
				sum += score
				scored++
			}
		}
	}
	if scored > 0 {
		stats.AvgScore = math.Round(sum/float64(scored)*100) / 100
	}
	return stats, nil
}

