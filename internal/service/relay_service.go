package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"doni-bot/internal/completion"
	"doni-bot/internal/model"
	"doni-bot/internal/prompt"
)

// UserStore is the part of the user repository the relay needs.
type UserStore interface {
	EnsureUser(ctx context.Context, id int64, username, firstName string) error
}

// TurnStore is the part of the turn repository the relay needs.
type TurnStore interface {
	Append(ctx context.Context, userID int64, role model.Role, text string) (*model.Turn, error)
	Recent(ctx context.Context, userID int64, limit int) ([]model.Turn, error)
}

// Inbound is a free-text message received from a user.
type Inbound struct {
	UserID    int64
	Username  string
	FirstName string
	Text      string
}

// RelayOptions configures RelayService.
type RelayOptions struct {
	Persona          string
	HistoryLimit     int
	SerializePerUser bool
}

// RelayService turns one inbound message into a reply, keeping the
// conversation log up to date on the way.
type RelayService struct {
	users     UserStore
	turns     TurnStore
	completer completion.Completer
	persona   string
	limit     int
	locks     *IdentityLock
	log       zerolog.Logger
}

func NewRelayService(users UserStore, turns TurnStore, completer completion.Completer, opts RelayOptions, log zerolog.Logger) *RelayService {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 5
	}
	if opts.Persona == "" {
		opts.Persona = prompt.Persona
	}
	s := &RelayService{
		users:     users,
		turns:     turns,
		completer: completer,
		persona:   opts.Persona,
		limit:     opts.HistoryLimit,
		log:       log,
	}
	if opts.SerializePerUser {
		s.locks = NewIdentityLock()
	}
	return s
}

// Reply stores the user turn, asks the completion backend and stores its
// answer. Store failures are logged and skipped; a reply is always returned.
func (s *RelayService) Reply(ctx context.Context, in Inbound) string {
	if s.locks != nil {
		unlock := s.locks.Lock(in.UserID)
		defer unlock()
	}

	log := loggerFrom(ctx, s.log).With().Int64("user_id", in.UserID).Logger()
	text := strings.TrimSpace(in.Text)

	if err := s.users.EnsureUser(ctx, in.UserID, in.Username, in.FirstName); err != nil {
		log.Error().Err(err).Msg("ensure user")
	}
	if _, err := s.turns.Append(ctx, in.UserID, model.RoleUser, text); err != nil {
		log.Error().Err(err).Msg("store user turn")
	}

	window, err := s.turns.Recent(ctx, in.UserID, s.limit)
	if err != nil {
		log.Error().Err(err).Msg("load history")
		window = nil
	}

	res := s.completer.Complete(ctx, prompt.Build(s.persona, window, text))
	if res.OK() {
		log.Info().Int("history", len(window)).Int("reply_len", len([]rune(res.Text))).Msg("completion ok")
	} else {
		log.Warn().Str("kind", string(res.Failure.Kind)).Err(res.Failure).Msg("completion failed")
	}

	reply := res.Reply()
	if _, err := s.turns.Append(ctx, in.UserID, model.RoleAssistant, reply); err != nil {
		log.Error().Err(err).Msg("store assistant turn")
	}
	return reply
}

func loggerFrom(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}
