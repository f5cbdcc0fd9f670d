package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"doni-bot/internal/completion"
	"doni-bot/internal/model"
	"doni-bot/internal/prompt"
	"doni-bot/internal/repository"
	"doni-bot/internal/service"
)

type fakeSender struct {
	mu         sync.Mutex
	sent       []tgbotapi.MessageConfig
	rejectHTML bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if f.rejectHTML && msg.ParseMode == tgbotapi.ModeHTML {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

type stubCompleter struct {
	result completion.Result
}

func (s stubCompleter) Complete(context.Context, prompt.Conversation) completion.Result {
	return s.result
}

type harness struct {
	bot    *Bot
	sender *fakeSender
	users  *repository.UserRepository
	turns  *repository.TurnRepository
}

func newHarness(t *testing.T, res completion.Result) harness {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "bot.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	users := repository.NewUserRepository(db)
	turns := repository.NewTurnRepository(db)
	relay := service.NewRelayService(users, turns, stubCompleter{result: res}, service.RelayOptions{HistoryLimit: 5, SerializePerUser: true}, zerolog.Nop())
	sender := &fakeSender{}
	return harness{
		bot:    newBot(sender, users, relay, zerolog.Nop()),
		sender: sender,
		users:  users,
		turns:  turns,
	}
}

func command(userID int64, text string) *tgbotapi.Message {
	msg := textMessage(userID, text)
	name := strings.SplitN(text, " ", 2)[0]
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}
	return msg
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Ivan", UserName: "ivan_crypto"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
}

func TestStart_GreetsAndRegisters(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "ok"})
	ctx := context.Background()

	require.NoError(t, h.bot.handleMessage(ctx, command(42, "/start")))

	texts := h.sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Doni")
	assert.Equal(t, tgbotapi.ModeHTML, h.sender.sent[0].ParseMode)

	user, err := h.users.FindByID(ctx, 42)
	require.NoError(t, err)
	assert.False(t, user.JoinedAt.IsZero())
	assert.Equal(t, "ivan_crypto", user.Username)
}

func TestProfile_BeforeRegistration(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "ok"})
	ctx := context.Background()

	require.NoError(t, h.bot.handleMessage(ctx, command(42, "/profile")))

	texts := h.sender.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, textNotRegistered, texts[0])

	_, err := h.users.FindByID(ctx, 42)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestProfile_AfterStart(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "ok"})
	ctx := context.Background()

	require.NoError(t, h.bot.handleMessage(ctx, command(42, "/start")))
	require.NoError(t, h.bot.handleMessage(ctx, command(42, "/profile")))

	texts := h.sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "<b>Твой профиль:</b>")
	assert.Contains(t, texts[1], "Имя: Ivan")
	assert.Contains(t, texts[1], "Логин: @ivan_crypto")
	assert.Contains(t, texts[1], "Дата регистрации: ")
}

func TestHelp_ListsCommands(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "ok"})

	require.NoError(t, h.bot.handleMessage(context.Background(), command(1, "/help")))

	texts := h.sender.texts()
	require.Len(t, texts, 1)
	for _, cmd := range []string{"/start", "/help", "/profile"} {
		assert.Contains(t, texts[0], cmd)
	}
}

func TestChat_PersistsAndReplies(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "Инвестируй в **себя**!"})
	ctx := context.Background()

	require.NoError(t, h.bot.handleMessage(ctx, command(42, "/start")))
	require.NoError(t, h.bot.handleMessage(ctx, textMessage(42, "Hello")))

	texts := h.sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Инвестируй в <b>себя</b>!", texts[1])

	turns, err := h.turns.Recent(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "Hello", turns[0].Text)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Инвестируй в **себя**!", turns[1].Text)
	assert.False(t, turns[1].CreatedAt.Before(turns[0].CreatedAt))
}

func TestChat_UnknownCommandIsRelayed(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "не знаю такой команды, но слушаю"})
	ctx := context.Background()

	require.NoError(t, h.bot.handleMessage(ctx, command(5, "/moon")))

	turns, err := h.turns.Recent(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "/moon", turns[0].Text)
}

func TestChat_CompletionFailureIsVisible(t *testing.T) {
	res := completion.Result{Failure: &completion.Failure{Kind: completion.KindStatus, Backend: "openai", StatusCode: 500, Err: errors.New("<html>oops</html>")}}
	h := newHarness(t, res)

	require.NoError(t, h.bot.handleMessage(context.Background(), textMessage(8, "hi")))

	texts := h.sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Ошибка GPT")
	assert.Contains(t, texts[0], "&lt;html&gt;")
}

func TestChat_FallsBackToPlainText(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "**жирно**"})
	h.sender.rejectHTML = true

	require.NoError(t, h.bot.handleMessage(context.Background(), textMessage(8, "hi")))

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "**жирно**", h.sender.sent[0].Text)
	assert.Empty(t, h.sender.sent[0].ParseMode)
}

func TestNonText_IsAcknowledgedAndIgnored(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "ok"})
	ctx := context.Background()

	sticker := textMessage(9, "")
	sticker.Sticker = &tgbotapi.Sticker{FileID: "sticker"}
	require.NoError(t, h.bot.handleMessage(ctx, sticker))

	texts := h.sender.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, textTextOnly, texts[0])

	turns, err := h.turns.Recent(ctx, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDispatch_HandlesConcurrently(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "ok"})

	for i := int64(1); i <= 5; i++ {
		h.bot.dispatch(context.Background(), textMessage(i, "ping"))
	}
	h.bot.Wait()

	assert.Len(t, h.sender.texts(), 5)
}

func TestMessageWithoutSender_IsSkipped(t *testing.T) {
	h := newHarness(t, completion.Result{Text: "ok"})

	msg := textMessage(1, "hi")
	msg.From = nil
	require.NoError(t, h.bot.handleMessage(context.Background(), msg))
	assert.Empty(t, h.sender.texts())
}
