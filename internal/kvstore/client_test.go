package kvstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis answers the subset of commands the client sends.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func (f *fakeRedis) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
		return
	}
	var cmd []any
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	reply := func(v any) { _ = json.NewEncoder(w).Encode(map[string]any{"result": v}) }
	switch cmd[0] {
	case "INCR":
		n, _ := strconv.Atoi(f.data[cmd[1].(string)])
		n++
		f.data[cmd[1].(string)] = strconv.Itoa(n)
		reply(n)
	case "GET":
		v, ok := f.data[cmd[1].(string)]
		if !ok {
			reply(nil)
			return
		}
		reply(v)
	case "MGET":
		out := make([]any, 0, len(cmd)-1)
		for _, k := range cmd[1:] {
			if v, ok := f.data[k.(string)]; ok {
				out = append(out, v)
			} else {
				out = append(out, nil)
			}
		}
		reply(out)
	case "SET":
		k := cmd[1].(string)
		if _, ok := f.data[k]; ok {
			reply(nil)
			return
		}
		f.data[k] = cmd[2].(string)
		reply("OK")
	default:
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "ERR unknown command"})
	}
}

func newTestClient(t *testing.T) (*Client, *fakeRedis) {
	t.Helper()
	f := &fakeRedis{data: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "secret")
	t.Cleanup(c.Close)
	return c, f
}

func TestClient_IncrAndGet(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	n, err := c.Get(ctx, "pageviews:projects:a")
	require.NoError(t, err)
	assert.Zero(t, n)

	for want := int64(1); want <= 3; want++ {
		n, err = c.Incr(ctx, "pageviews:projects:a")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err = c.Get(ctx, "pageviews:projects:a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestClient_MGet(t *testing.T) {
	c, f := newTestClient(t)
	f.data["a"] = "4"
	f.data["c"] = "9"

	got, err := c.MGet(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 0, 9}, got)

	got, err = c.MGet(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_MarkSeen(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	first, err := c.MarkSeen(ctx, "deduplicate:x:a", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := c.MarkSeen(ctx, "deduplicate:x:a", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestClient_Errors(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	bad := NewClient(c.baseURL, "wrong")
	_, err = bad.Incr(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestClient_NonIntegerValue(t *testing.T) {
	c, f := newTestClient(t)
	f.data["a"] = "hello"
	_, err := c.Get(context.Background(), "a")
	assert.Error(t, err)
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{`null`, 0},
		{``, 0},
		{`12`, 12},
		{`"42"`, 42},
	}
	for _, tt := range tests {
		got, err := parseInt(json.RawMessage(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
