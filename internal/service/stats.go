package service

import (
	"context"
	"fmt"
	"time"

	"github.com/templui/accounts/internal/apperror"
	"github.com/templui/accounts/internal/model"
	"github.com/templui/accounts/internal/repository"
)

const summaryDays = 7

// StatsService aggregates sessions by calendar day in one location.
// Sessions are stored in UTC; day boundaries are local midnights.
type StatsService struct {
	store *repository.Store
	loc   *time.Location
	now   func() time.Time
}

func NewStatsService(store *repository.Store, loc *time.Location) *StatsService {
	if loc == nil {
		loc = time.Local
	}
	return &StatsService{store: store, loc: loc, now: time.Now}
}

func (s *StatsService) TotalUsers(ctx context.Context) (int, error) {
	count, err := s.store.Users.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// ActiveToday counts distinct users with a session since local midnight.
func (s *StatsService) ActiveToday(ctx context.Context) (int, error) {
	return s.activeOn(ctx, s.today())
}

// AvgActiveLastNDays averages the daily distinct active users over the last
// n calendar days, today included. Days without sessions count as zero.
func (s *StatsService) AvgActiveLastNDays(ctx context.Context, n int) (float64, error) {
	if n < 1 {
		return 0, apperror.ValidationFailed("days", "must be at least 1")
	}

	today := s.today()
	total := 0
	for i := 0; i < n; i++ {
		count, err := s.activeOn(ctx, today.AddDate(0, 0, -i))
		if err != nil {
			return 0, err
		}
		total += count
	}
	return float64(total) / float64(n), nil
}

func (s *StatsService) Summary(ctx context.Context) (*model.Stats, error) {
	total, err := s.TotalUsers(ctx)
	if err != nil {
		return nil, err
	}
	today, err := s.ActiveToday(ctx)
	if err != nil {
		return nil, err
	}
	avg, err := s.AvgActiveLastNDays(ctx, summaryDays)
	if err != nil {
		return nil, err
	}
	return &model.Stats{TotalUsers: total, ActiveToday: today, AvgActiveLast7d: avg}, nil
}

func (s *StatsService) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// activeOn counts users active during the local day starting at midnight.
func (s *StatsService) activeOn(ctx context.Context, midnight time.Time) (int, error) {
	count, err := s.store.Sessions.CountActiveUsers(ctx, midnight, midnight.AddDate(0, 0, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return count, nil
}
