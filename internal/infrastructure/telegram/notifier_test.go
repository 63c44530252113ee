package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		got struct{ path, chat, text, mode string }
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		mu.Lock()
		defer mu.Unlock()
		got.path = r.URL.Path
		got.chat = r.PostForm.Get("chat_id")
		got.text = r.PostForm.Get("text")
		got.mode = r.PostForm.Get("parse_mode")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier("123:abc", "-100", nil)
	n.apiURL = srv.URL

	require.NoError(t, n.PublishDigest(context.Background(), "*Captação* 3 novos"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/bot123:abc/sendMessage", got.path)
	assert.Equal(t, "-100", got.chat)
	assert.Equal(t, "*Captação* 3 novos", got.text)
	assert.Equal(t, "Markdown", got.mode)
}

func TestPublishDigestErrors(t *testing.T) {
	t.Parallel()

	err := NewNotifier("", "", nil).PublishDigest(context.Background(), "x")
	require.ErrorIs(t, err, ErrMisconfigured)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier("t", "c", nil)
	n.apiURL = srv.URL
	err = n.PublishDigest(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestClipLongDigest(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", maxMessageRunes+10)
	assert.Len(t, []rune(clip(long)), maxMessageRunes)
	assert.Equal(t, "curto", clip("curto"))
}
