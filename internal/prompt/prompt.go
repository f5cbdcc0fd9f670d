// Package prompt composes the persona, the history window and the new user
// text into a model request. Backends pick the representation they need:
// a flattened text block or a role-tagged message list.
package prompt

import (
	"strings"

	"doni-bot/internal/model"
)

// Persona is the system instruction of the Doni character.
const Persona = "Ты — Doni, богатый, уверенный в себе миллионер с юмором. " +
	"Ты мастер в криптовалюте, инвестициях и финансах. " +
	"Отвечай дружелюбно, уверенно, иногда шути, всегда на русском."

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	userLabel      = "Пользователь"
	assistantLabel = "Doni"
)

// Message is a role-tagged chat message.
type Message struct {
	Role    string
	Content string
}

// Conversation is the immutable input of one completion request.
type Conversation struct {
	System  string
	History []model.Turn
	Text    string
}

// Build copies the window so later changes by the caller do not leak in.
func Build(persona string, window []model.Turn, text string) Conversation {
	history := make([]model.Turn, len(window))
	copy(history, window)
	return Conversation{
		System:  persona,
		History: history,
		Text:    text,
	}
}

// Flatten renders history and the new message as one labelled text block.
// The persona is not included; backends send it as a system instruction.
func (c Conversation) Flatten() string {
	lines := make([]string, 0, len(c.History))
	for _, turn := range c.History {
		lines = append(lines, label(turn.Role)+": "+turn.Text)
	}

	var b strings.Builder
	b.WriteString("История:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
	b.WriteString(userLabel + ": " + c.Text + "\n")
	b.WriteString(assistantLabel + ":")
	return b.String()
}

// Messages renders the conversation as a message list: the persona, the
// history turns, then the new text unless the history already ends with it.
func (c Conversation) Messages() []Message {
	messages := make([]Message, 0, len(c.History)+2)
	if c.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: c.System})
	}
	for _, turn := range c.History {
		messages = append(messages, Message{Role: role(turn.Role), Content: turn.Text})
	}
	if !c.endsWithCurrent() {
		messages = append(messages, Message{Role: RoleUser, Content: c.Text})
	}
	return messages
}

func (c Conversation) endsWithCurrent() bool {
	if len(c.History) == 0 {
		return false
	}
	last := c.History[len(c.History)-1]
	return last.Role == model.RoleUser && last.Text == c.Text
}

func label(r model.Role) string {
	if r == model.RoleUser {
		return userLabel
	}
	return assistantLabel
}

func role(r model.Role) string {
	if r == model.RoleUser {
		return RoleUser
	}
	return RoleAssistant
}
