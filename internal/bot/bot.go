package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"doni-bot/internal/model"
	"doni-bot/internal/service"
)

const (
	textStart = "<b>Привет!</b> Я <b>Doni</b> — богатый миллионер-бот.\n" +
		"Пиши — пообщаемся 😎"
	textHelp = "<b>Команды:</b>\n" +
		"/start — старт\n" +
		"/help — помощь\n" +
		"/profile — твой профиль\n"
	textNotRegistered = "Ты ещё не в базе. Напиши /start."
	textTextOnly      = "Я понимаю только текстовые сообщения. Напиши мне словами 🙂"
	emptyField        = "—"
)

// Sender delivers outgoing messages. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserStore covers the user operations of the command handlers.
type UserStore interface {
	EnsureUser(ctx context.Context, id int64, username, firstName string) error
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// Replier produces the reply to a free-text message.
type Replier interface {
	Reply(ctx context.Context, in service.Inbound) string
}

// Bot routes Telegram updates to the command handlers and the relay.
type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	users  UserStore
	relay  Replier
	log    zerolog.Logger
	wg     sync.WaitGroup
}

func New(token string, users UserStore, relay Replier, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Info().Str("account", api.Self.UserName).Msg("bot authorized")

	b := newBot(api, users, relay, log)
	b.api = api
	return b, nil
}

func newBot(sender Sender, users UserStore, relay Replier, log zerolog.Logger) *Bot {
	return &Bot{
		sender: sender,
		users:  users,
		relay:  relay,
		log:    log,
	}
}

// Start begins polling updates until ctx is cancelled, then waits for the
// messages still being handled.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot api is not initialized")
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil {
			continue
		}
		b.dispatch(ctx, update.Message)
	}

	b.log.Info().Msg("polling stopped, waiting for in-flight messages")
	b.wg.Wait()
	return nil
}

// dispatch handles msg in its own goroutine. In-flight handlers are not
// cancelled on shutdown; they end on their own or on the completion timeout.
func (b *Bot) dispatch(ctx context.Context, msg *tgbotapi.Message) {
	log := b.log.With().Str("trace_id", uuid.NewString()).Logger()
	if msg.From != nil {
		log = log.With().Int64("user_id", msg.From.ID).Logger()
	}
	hctx := log.WithContext(context.WithoutCancel(ctx))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.handleMessage(hctx, msg); err != nil {
			log.Error().Err(err).Msg("handle message")
		}
	}()
}

// Wait blocks until every dispatched message is handled.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}

	if msg.IsCommand() {
		zerolog.Ctx(ctx).Info().Str("command", msg.Command()).Msg("command received")
		switch msg.Command() {
		case "start":
			return b.handleStart(ctx, msg)
		case "help":
			return b.handleHelp(msg)
		case "profile":
			return b.handleProfile(ctx, msg)
		}
	}

	if strings.TrimSpace(msg.Text) == "" {
		return b.sendText(msg.Chat.ID, textTextOnly)
	}

	return b.handleChat(ctx, msg)
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if err := b.ensureUser(ctx, msg.From); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("ensure user on start")
	}
	return b.sendText(msg.Chat.ID, textStart)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, textHelp)
}

func (b *Bot) handleProfile(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.users.FindByID(ctx, msg.From.ID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return b.sendText(msg.Chat.ID, textNotRegistered)
	case err != nil:
		return fmt.Errorf("load profile: %w", err)
	}
	return b.sendText(msg.Chat.ID, formatProfile(user))
}

func (b *Bot) handleChat(ctx context.Context, msg *tgbotapi.Message) error {
	reply := b.relay.Reply(ctx, service.Inbound{
		UserID:    msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		Text:      msg.Text,
	})
	return b.sendReply(ctx, msg.Chat.ID, reply)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) error {
	return b.users.EnsureUser(ctx, from.ID, from.UserName, from.FirstName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.sender.Send(msg)
	return err
}

// sendReply delivers model output in chunks Telegram accepts. A chunk whose
// markup is rejected is sent again as plain text.
func (b *Bot) sendReply(ctx context.Context, chatID int64, reply string) error {
	for _, chunk := range splitMessage(reply, maxMessageRunes) {
		if err := b.sendText(chatID, renderMarkup(chunk)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("send formatted reply, retrying as plain text")
			if _, err := b.sender.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
				return fmt.Errorf("send reply: %w", err)
			}
		}
	}
	return nil
}

func formatProfile(user *model.User) string {
	return fmt.Sprintf(
		"<b>Твой профиль:</b>\nИмя: %s\nЛогин: @%s\nДата регистрации: %s",
		orDash(user.FirstName),
		orDash(user.Username),
		user.JoinedAt.UTC().Format("2006-01-02"),
	)
}

func orDash(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return emptyField
	}
	return html.EscapeString(s)
}
