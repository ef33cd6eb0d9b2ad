package push_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/trip-scheduler/internal/push"
)

func tokens(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("tok-%d", i)
	}
	return out
}

func TestHTTPSender_Send(t *testing.T) {
	var got push.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(push.Result{SuccessCount: len(got.Tokens) - 1, FailureCount: 1})
	}))
	defer srv.Close()

	s := push.NewHTTPSender(srv.URL, "secret", 0)
	res, err := s.Send(context.Background(), push.Message{
		Tokens: []string{"a", "b"},
		Title:  "Trip scheduled",
		Body:   "body",
		Data:   map[string]string{"schedule_id": "42"},
	})

	require.NoError(t, err)
	assert.Equal(t, push.Result{SuccessCount: 1, FailureCount: 1}, res)
	assert.Equal(t, "Trip scheduled", got.Title)
	assert.Equal(t, "42", got.Data["schedule_id"])
}

func TestHTTPSender_Send_Batches(t *testing.T) {
	var (
		mu      sync.Mutex
		batches []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m push.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		mu.Lock()
		batches = append(batches, len(m.Tokens))
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(push.Result{SuccessCount: len(m.Tokens)})
	}))
	defer srv.Close()

	res, err := push.NewHTTPSender(srv.URL, "", 0).Send(context.Background(), push.Message{Tokens: tokens(1200)})

	require.NoError(t, err)
	assert.Equal(t, 1200, res.SuccessCount)
	assert.Equal(t, []int{500, 500, 200}, batches)
}

func TestHTTPSender_Send_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res, err := push.NewHTTPSender(srv.URL, "", 0).Send(context.Background(), push.Message{Tokens: tokens(3)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, push.Result{FailureCount: 3}, res)
}

func TestHTTPSender_Send_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(push.Result{SuccessCount: 500})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// One request per minute: the second batch cannot get a token in time.
	res, err := push.NewHTTPSender(srv.URL, "", 1.0/60).Send(ctx, push.Message{Tokens: tokens(600)})

	require.Error(t, err)
	assert.Equal(t, 500, res.SuccessCount)
	assert.Equal(t, 100, res.FailureCount)
}

func TestLogSender_Send(t *testing.T) {
	s := push.NewLogSender(slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := s.Send(context.Background(), push.Message{Tokens: tokens(4)})

	require.NoError(t, err)
	assert.Equal(t, 4, res.SuccessCount)
}

// TestRedisSender_Send needs a live Redis server; it is skipped unless
// TEST_REDIS_URL is set (e.g. redis://localhost:6379/0).
func TestRedisSender_Send(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	sub := redis.NewClient(opt).Subscribe(context.Background(), "push-test")
	defer sub.Close()
	_, err = sub.Receive(context.Background())
	require.NoError(t, err)

	s, err := push.NewRedisSender(url, "push-test")
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Send(context.Background(), push.Message{Tokens: tokens(2), Title: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)

	select {
	case msg := <-sub.Channel():
		var got push.Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "hi", got.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestNewRedisSender_BadURL(t *testing.T) {
	_, err := push.NewRedisSender("not a url", "ch")

	assert.Error(t, err)
}
