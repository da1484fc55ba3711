// Package bybittest provides an in-process fake of the Bybit v5 REST API for
// tests. Private endpoints check the HMAC signature against Secret.
package bybittest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

const (
	Key    = "test-key"
	Secret = "test-secret"

	RetCodeBadSign = 10004
)

// Position mirrors a position/list entry.
type Position struct {
	Side     string
	Size     string
	AvgPrice string
	LiqPrice string
	Leverage string
}

// Call records one request that reached a handler.
type Call struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// Reject makes an endpoint answer with a non-zero retCode.
type Reject struct {
	Code int
	Msg  string
}

type Server struct {
	*httptest.Server

	mu         sync.Mutex
	ServerTime int64
	Price      string
	Pos        *Position
	Balance    string
	Klines     [][]string
	Rejects    map[string]Reject
	// Broken paths return a body that is not JSON.
	Broken map[string]bool
	// AfterOrder, when set, replaces Pos after a successful order.
	AfterOrder *Position
	calls      []Call
}

func NewServer() *Server {
	s := &Server{
		ServerTime: 1700000000000,
		Price:      "50000",
		Balance:    "1000",
		Rejects:    map[string]Reject{},
		Broken:     map[string]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v5/market/time", s.public(s.handleTime))
	mux.HandleFunc("/v5/market/tickers", s.public(s.handleTickers))
	mux.HandleFunc("/v5/market/kline", s.public(s.handleKline))
	mux.HandleFunc("/v5/position/list", s.private(s.handlePositions))
	mux.HandleFunc("/v5/position/set-leverage", s.private(s.handleOK))
	mux.HandleFunc("/v5/order/create", s.private(s.handleOrder))
	mux.HandleFunc("/v5/position/trading-stop", s.private(s.handleOK))
	mux.HandleFunc("/v5/account/wallet-balance", s.private(s.handleWallet))
	s.Server = httptest.NewServer(mux)
	return s
}

// Set runs fn with the server state locked.
func (s *Server) Set(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Calls returns requests seen for path, or all requests when path is "".
func (s *Server) Calls(path string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if path == "" || c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

type handler func(w http.ResponseWriter, r *http.Request, body map[string]any) any

func (s *Server) public(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, nil, h)
	}
}

func (s *Server) private(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		payload := r.URL.RawQuery
		if r.Method == http.MethodPost {
			payload = string(raw)
		}
		mac := hmac.New(sha256.New, []byte(Secret))
		mac.Write([]byte(r.Header.Get("X-BAPI-TIMESTAMP") + r.Header.Get("X-BAPI-API-KEY") + r.Header.Get("X-BAPI-RECV-WINDOW") + payload))
		if r.Header.Get("X-BAPI-API-KEY") != Key || hex.EncodeToString(mac.Sum(nil)) != r.Header.Get("X-BAPI-SIGN") {
			writeEnvelope(w, RetCodeBadSign, "error sign!", nil, 0)
			return
		}
		var body map[string]any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				writeEnvelope(w, 10001, "bad body", nil, 0)
				return
			}
		}
		s.serve(w, r, body, h)
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, body map[string]any, h handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})

	if s.Broken[r.URL.Path] {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
		return
	}
	if rej, ok := s.Rejects[r.URL.Path]; ok {
		writeEnvelope(w, rej.Code, rej.Msg, map[string]any{}, s.ServerTime)
		return
	}
	writeEnvelope(w, 0, "OK", h(w, r, body), s.ServerTime)
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, result any, ts int64) {
	w.Header().Set("Content-Type", "application/json")
	env := map[string]any{"retCode": code, "retMsg": msg, "result": result}
	if ts > 0 {
		env["time"] = ts
	}
	_ = json.NewEncoder(w).Encode(env)
}

func (s *Server) handleTime(http.ResponseWriter, *http.Request, map[string]any) any {
	return map[string]string{"timeSecond": strconv.FormatInt(s.ServerTime/1000, 10)}
}

func (s *Server) handleTickers(_ http.ResponseWriter, r *http.Request, _ map[string]any) any {
	return map[string]any{"list": []map[string]string{{"symbol": r.URL.Query().Get("symbol"), "lastPrice": s.Price}}}
}

func (s *Server) handleKline(http.ResponseWriter, *http.Request, map[string]any) any {
	list := s.Klines
	if list == nil {
		list = [][]string{}
	}
	return map[string]any{"list": list}
}

func (s *Server) handlePositions(_ http.ResponseWriter, r *http.Request, _ map[string]any) any {
	if s.Pos == nil {
		return map[string]any{"list": []any{}}
	}
	return map[string]any{"list": []map[string]string{{
		"symbol":   r.URL.Query().Get("symbol"),
		"side":     s.Pos.Side,
		"size":     s.Pos.Size,
		"avgPrice": s.Pos.AvgPrice,
		"liqPrice": s.Pos.LiqPrice,
		"leverage": s.Pos.Leverage,
	}}}
}

func (s *Server) handleOK(http.ResponseWriter, *http.Request, map[string]any) any {
	return map[string]any{}
}

func (s *Server) handleOrder(_ http.ResponseWriter, _ *http.Request, body map[string]any) any {
	if s.AfterOrder != nil {
		p := *s.AfterOrder
		s.Pos = &p
	}
	link, _ := body["orderLinkId"].(string)
	return map[string]string{"orderId": "ord-" + strconv.Itoa(len(s.calls)), "orderLinkId": link}
}

func (s *Server) handleWallet(http.ResponseWriter, *http.Request, map[string]any) any {
	return map[string]any{"list": []map[string]any{{
		"accountType": "UNIFIED",
		"coin":        []map[string]string{{"coin": "USDT", "walletBalance": s.Balance}},
	}}}
}
