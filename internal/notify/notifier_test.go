package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sable-labs/crossarb/internal/bus"
	"github.com/sable-labs/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collectingSender records delivered messages.
type collectingSender struct {
	mu    sync.Mutex
	texts []string
	got   chan struct{}
}

func newCollectingSender() *collectingSender {
	return &collectingSender{got: make(chan struct{}, 16)}
}

func (s *collectingSender) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	s.got <- struct{}{}
	return nil
}

func (s *collectingSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func TestFormatTrade(t *testing.T) {
	failed, _ := json.Marshal(domain.Trade{
		ID: "t1", Symbol: "WETH/USDC", Status: domain.TradeFailed, Error: "timeout",
	})
	text := format(domain.TopicTradeFailed, failed)
	assert.Contains(t, text, "t1")
	assert.Contains(t, text, "failed")
	assert.Contains(t, text, "timeout")

	unreconciled, _ := json.Marshal(domain.Trade{
		ID: "t2", Symbol: "WETH/USDC", Status: domain.TradeFailed,
		Unreconciled: true, Error: "swap reverted",
	})
	text = format(domain.TopicTradeUnreconciled, unreconciled)
	assert.Contains(t, text, "UNRECONCILED")
	assert.Contains(t, text, "t2")
}

func TestFormatAlert(t *testing.T) {
	payload, _ := json.Marshal(domain.Alert{
		Severity: "critical", Source: "circuit_breaker", Message: "engine paused",
	})
	text := format(domain.TopicAlertTriggered, payload)
	assert.Contains(t, text, "critical")
	assert.Contains(t, text, "engine paused")
}

func TestFormatGarbageFallsBack(t *testing.T) {
	assert.Equal(t, domain.TopicAlertTriggered, format(domain.TopicAlertTriggered, []byte("{")))
}

func TestNotifierDeliversSubscribedTopics(t *testing.T) {
	eventBus := bus.NewMemory(testLogger())
	sender := newCollectingSender()
	n := New(sender, eventBus, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Run(ctx)
	}()

	// Give the subscriptions a moment to register.
	require.Eventually(t, func() bool {
		payload, _ := json.Marshal(domain.Trade{ID: "t1", Status: domain.TradeFailed, Error: "boom"})
		_ = eventBus.Publish(ctx, domain.TopicTradeFailed, payload)
		select {
		case <-sender.got:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	texts := sender.all()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[0], "t1")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier did not stop on cancel")
	}
}

func TestTelegramSend(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("token123", "chat42")
	tg.baseURL = srv.URL

	require.NoError(t, tg.Send(context.Background(), "hello"))
	assert.Equal(t, "/bottoken123/sendMessage", path)
	assert.Equal(t, "chat42", body["chat_id"])
	assert.Equal(t, "hello", body["text"])
}

func TestTelegramSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegram("token", "chat")
	tg.baseURL = srv.URL
	assert.Error(t, tg.Send(context.Background(), "hello"))
}
