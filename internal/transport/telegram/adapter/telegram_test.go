package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"chispitas/internal/transport"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"hola"}, splitText("hola", 10))
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, splitText(s, 10))
}

func TestSplitTextLongLine(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("ñ", 25)
	chunks := splitText(s, 10)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
	assert.Equal(t, s, strings.Join(chunks, ""))
}

func TestToMessage(t *testing.T) {
	t.Parallel()

	me := &tele.User{ID: 99, Username: "ChispitasBot"}
	group := &tele.Chat{ID: -100, Type: tele.ChatSuperGroup}

	m, ok := toMessage(&tele.Message{ID: 1, Chat: group, Sender: &tele.User{ID: 5, Username: "ana"}, Text: "/saldo@chispitasbot"}, me)
	require.True(t, ok)
	assert.Equal(t, transport.Message{ID: 1, ChatID: -100, FromID: 5, FromUsername: "ana", Text: "/saldo@chispitasbot", IsGroup: true, Mentioned: true}, m)

	m, _ = toMessage(&tele.Message{Chat: group, Text: "/saldo"}, me)
	assert.False(t, m.Mentioned)

	m, _ = toMessage(&tele.Message{Chat: group, Text: "/saldo", ReplyTo: &tele.Message{Sender: me}}, me)
	assert.True(t, m.Mentioned)

	m, _ = toMessage(&tele.Message{Chat: &tele.Chat{ID: 5, Type: tele.ChatPrivate}, Text: "/hola"}, me)
	assert.False(t, m.IsGroup)

	_, ok = toMessage(nil, me)
	assert.False(t, ok)
}

func TestMenuHashChanges(t *testing.T) {
	t.Parallel()

	a := []transport.BotCommand{{Command: "saldo", Description: "Saldo"}}
	b := []transport.BotCommand{{Command: "saldo", Description: "Saldo de la cuenta"}}
	assert.Equal(t, menuHash(a), menuHash(a))
	assert.NotEqual(t, menuHash(a), menuHash(b))
}
