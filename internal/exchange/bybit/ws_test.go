package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func klineServer(t *testing.T, topics chan<- string, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub struct {
			Op   string   `json:"op"`
			Args []string `json:"args"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if len(sub.Args) > 0 {
			select {
			case topics <- sub.Args[0]:
			default:
			}
		}
		conn.WriteJSON(map[string]any{"op": "subscribe", "success": true, "ret_msg": ""})
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// answer pings until the client goes away
		for {
			var m map[string]any
			if err := conn.ReadJSON(&m); err != nil {
				return
			}
			if m["op"] == "ping" {
				conn.WriteJSON(map[string]any{"op": "pong", "success": true})
			}
		}
	}))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "kline.1.BTCUSDT", Topic("1", "BTCUSDT"))
}

func TestWSStreamKlines(t *testing.T) {
	topics := make(chan string, 1)
	frame := `{"topic":"kline.1.BTCUSDT","type":"snapshot","ts":1700000061000,"data":[{"start":1700000000000,"end":1700000059999,"interval":"1","open":"100","close":"105","high":"110","low":"90","volume":"12.5","turnover":"1300","confirm":true,"timestamp":1700000061000}]}`
	srv := klineServer(t, topics, `not json`, frame)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	out := make(chan StreamKline, 4)
	errs := make(chan error, 4)
	done := make(chan error, 1)
	go func() { done <- NewWS(wsURL(srv)).Stream(ctx, "BTCUSDT", "1", out, errs, 50*time.Millisecond) }()

	select {
	case k := <-out:
		assert.Equal(t, "BTCUSDT", k.Symbol)
		assert.True(t, k.Confirm)
		assert.Equal(t, int64(1700000000000), k.Kline.Start)
		assert.Equal(t, 105.0, k.Kline.Close)
		assert.Equal(t, 12.5, k.Kline.Volume)
	case <-ctx.Done():
		t.Fatal("no kline received")
	}
	assert.Equal(t, "kline.1.BTCUSDT", <-topics)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestWSStreamDefaultsPing(t *testing.T) {
	topics := make(chan string, 1)
	frame := `{"topic":"kline.1.BTCUSDT","data":[{"start":1700000000000,"open":"1","close":"2","high":"3","low":"0.5","volume":"4","confirm":false}]}`
	srv := klineServer(t, topics, frame)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	out := make(chan StreamKline, 4)
	done := make(chan error, 1)
	go func() { done <- NewWS(wsURL(srv)).Stream(ctx, "BTCUSDT", "1", out, make(chan error, 4), 0) }()

	select {
	case k := <-out:
		assert.False(t, k.Confirm)
		assert.Equal(t, 2.0, k.Kline.Close)
	case <-ctx.Done():
		t.Fatal("no kline received")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWSStreamReconnects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	errs := make(chan error, 4)
	go NewWS(wsURL(srv)).Stream(ctx, "BTCUSDT", "1", make(chan StreamKline), errs, time.Second)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrStreamDropped)
	case <-ctx.Done():
		t.Fatal("expected a reconnect error")
	}
}

func TestParseKlines(t *testing.T) {
	data := json.RawMessage(`[{"start":1,"open":"1","high":"2","low":"0.5","close":"1.5","volume":"10","confirm":false}]`)
	kls, err := parseKlines(data)
	require.NoError(t, err)
	require.Len(t, kls, 1)
	assert.False(t, kls[0].Confirm)
	assert.Equal(t, 2.0, kls[0].Kline.High)

	_, err = parseKlines(json.RawMessage(`[{"start":1,"open":"","high":"2","low":"0.5","close":"1.5","volume":"10"}]`))
	assert.Error(t, err)

	_, err = parseKlines(json.RawMessage(`{"start":1}`))
	assert.Error(t, err)
}

func TestToFloat(t *testing.T) {
	f, err := toFloat("123.45")
	require.NoError(t, err)
	assert.Equal(t, 123.45, f)

	for _, bad := range []string{"", "abc", "NaN", "Inf"} {
		_, err := toFloat(bad)
		assert.Error(t, err, bad)
	}
}
