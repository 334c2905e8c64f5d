package api

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fathima-sithara/location-service/internal/auth"
	"github.com/fathima-sithara/location-service/internal/metrics"
	"github.com/fathima-sithara/location-service/internal/notify"
	"github.com/fathima-sithara/location-service/internal/room"
	"github.com/fathima-sithara/location-service/internal/ws"
)

const secret = "api-test-secret"

func token(t *testing.T, sub string, role any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

type fixture struct {
	reg  *room.Registry
	addr string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	jv, err := auth.NewJWTValidatorHS256(secret, "", "", "role")
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	reg := room.NewRegistry(nil, nil, room.Settings{Metrics: m})
	m.ObserveRooms(
		func() float64 { return float64(reg.Stats().Active) },
		func() float64 { return float64(reg.Stats().Inactive) },
	)
	d := ws.NewDispatcher(reg, nil, m, 0)
	gw := ws.NewGateway(jv, d, ws.Options{}, nil)
	app := NewServer(reg, gw, jv, metrics.Handler(promReg), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return &fixture{reg: reg, addr: ln.Addr().String()}
}

func (f *fixture) get(t *testing.T, path, bearer string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "http://"+f.addr+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+f.addr+"/ws?"+query, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, c *websocket.Conn) notify.Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f notify.Frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, body := f.get(t, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestWebsocketRequiresToken(t *testing.T) {
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+f.addr+"/ws", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial("ws://"+f.addr+"/ws?access_token=garbage", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code, _ := f.get(t, "/ws", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
	assert.Empty(t, f.reg.Rooms())
}

func TestRoomFlowOverWebsocket(t *testing.T) {
	f := newFixture(t)
	driver := f.dial(t, "access_token="+token(t, "driver-1", 1))
	passenger := f.dial(t, "token="+token(t, "user-1", "passenger"))

	require.NoError(t, driver.WriteJSON(map[string]any{"action": "create", "room": "route-42"}))
	created := readFrame(t, driver)
	assert.Equal(t, notify.EventRoomCreated, created.Event)

	require.NoError(t, passenger.WriteJSON(map[string]any{"action": "join", "roomId": "route-42"}))
	assert.Equal(t, notify.Frame{Event: notify.EventRoomJoined, Message: "Room joined: route-42"}, readFrame(t, passenger))

	require.NoError(t, driver.WriteJSON(map[string]any{"action": "broadcastLocation", "roomId": "route-42", "location": map[string]any{"lat": 9.93, "lng": 76.26}}))
	upd := readFrame(t, passenger)
	assert.Equal(t, notify.EventLocationUpdate, upd.Event)
	assert.JSONEq(t, `{"lat":9.93,"lng":76.26}`, upd.Message)

	code, body := f.get(t, "/v1/rooms/route-42", token(t, "admin", 2))
	require.Equal(t, http.StatusOK, code)
	var resp struct {
		Data room.Info `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Data.Active)
	assert.Equal(t, 1, resp.Data.Passengers)

	require.NoError(t, driver.Close())
	assert.Equal(t, notify.EventDriverDisconnected, readFrame(t, passenger).Event)

	code, body = f.get(t, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "room_location_updates_total 1")
	assert.Contains(t, string(body), "room_inactive 1")
}

func TestRoomsEndpoints(t *testing.T) {
	f := newFixture(t)

	code, _ := f.get(t, "/v1/rooms", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	tok := token(t, "ops", 2)
	code, body := f.get(t, "/v1/rooms", tok)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"data":[]`)

	code, _ = f.get(t, "/v1/rooms/missing", tok)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServerNoMetrics(t *testing.T) {
	jv, err := auth.NewJWTValidatorHS256(secret, "", "", "")
	require.NoError(t, err)
	reg := room.NewRegistry(nil, nil, room.Settings{})
	app := NewServer(reg, ws.NewGateway(jv, ws.NewDispatcher(reg, nil, nil, 0), ws.Options{}, nil), jv, nil, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestsAreLoggedThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	jv, err := auth.NewJWTValidatorHS256(secret, "", "", "")
	require.NoError(t, err)
	reg := room.NewRegistry(nil, nil, room.Settings{})
	app := NewServer(reg, ws.NewGateway(jv, ws.NewDispatcher(reg, nil, nil, 0), ws.Options{}, nil), jv, nil, zap.New(core))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return logs.FilterLoggerName("access").FilterMessageSnippet("GET /health 200").Len() == 1
	}, time.Second, 5*time.Millisecond)
}
