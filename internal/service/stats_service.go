package service

import (
	"context"

	"github.com/rs/zerolog"
)

// Counter reports how many rows a table holds.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Stats is a snapshot of the store size.
type Stats struct {
	Users int64
	Turns int64
}

// StatsService logs the growth of the conversation store. The store has no
// retention policy, so this is the only view on its size.
type StatsService struct {
	users Counter
	turns Counter
	log   zerolog.Logger
}

func NewStatsService(users, turns Counter, log zerolog.Logger) *StatsService {
	return &StatsService{users: users, turns: turns, log: log}
}

func (s *StatsService) Report(ctx context.Context) (Stats, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	turns, err := s.turns.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Users: users, Turns: turns}
	s.log.Info().Int64("users", stats.Users).Int64("turns", stats.Turns).Msg("store stats")
	return stats, nil
}
