package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"TopicNewsletter/internal/config"
)

type sentMessage struct {
	path   string
	chatID string
	text   string
}

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	sent := make(chan sentMessage, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		sent <- sentMessage{path: r.URL.Path, chatID: r.PostForm.Get("chat_id"), text: r.PostForm.Get("text")}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "123:abc", ChatID: "42", BaseURL: srv.URL + "/"}, srv.Client())
	require.True(t, n.Enabled())
	require.NoError(t, n.PublishDigest(context.Background(), "*Oncology* digest"))

	msg := <-sent
	require.Equal(t, "/bot123:abc/sendMessage", msg.path)
	require.Equal(t, "42", msg.chatID)
	require.Equal(t, "*Oncology* digest", msg.text)
}

func TestPublishDigestErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "t", ChatID: "c", BaseURL: srv.URL}, srv.Client())
	err := n.PublishDigest(context.Background(), "hello")
	require.ErrorContains(t, err, "chat not found")

	unconfigured := NewNotifier(config.TelegramConfig{}, nil)
	require.False(t, unconfigured.Enabled())
	require.Error(t, unconfigured.PublishDigest(context.Background(), "hello"))
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"short"}, splitMessage("  short \n", 10))
	require.Empty(t, splitMessage("   ", 10))

	text := "first para\n\nsecond para\nthird line"
	require.Equal(t, []string{"first para", "second para", "third line"}, splitMessage(text, 14))

	long := strings.Repeat("x", 25)
	parts := splitMessage(long, 10)
	require.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, parts)
}
