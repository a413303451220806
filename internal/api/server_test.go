package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinhunt/roomengine/internal/engine"
	"github.com/coinhunt/roomengine/internal/storage/memory"
	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/coinhunt/roomengine/pkg/streaming"
)

const testKey = "secret123"

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(memory.New(), engine.Options{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)
	for _, cfg := range []core.RoomConfig{
		{Room: "lobby", Coins: 4, Area: core.RoomArea{XMax: 10, YMax: 10, ZMax: 10}},
		{Room: "arena", Coins: 2, Area: core.RoomArea{XMin: 500, XMax: 510, YMin: 500, YMax: 510}},
	} {
		require.NoError(t, eng.Generate(context.Background(), cfg))
	}
	return eng
}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	eng := newTestEngine(t)
	return NewServer(eng, testKey, slog.New(slog.DiscardHandler)), eng
}

func serve(t *testing.T, s http.Handler, method, target string, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthcheck(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(t, s, http.MethodGet, "/healthcheck", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCoins(t *testing.T) {
	s, eng := newTestServer(t)

	rec := serve(t, s, http.MethodGet, "/coins/lobby", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, CoinsAvailableResponse{Room: "lobby", CoinsAvailable: 4}, decode[CoinsAvailableResponse](t, rec))

	coins, _ := eng.ListAvailable("lobby")
	_, err := eng.Grab(context.Background(), "lobby", coins[0].ID)
	require.NoError(t, err)

	rec = serve(t, s, http.MethodGet, "/coins/lobby", "", nil)
	assert.Equal(t, 3, decode[CoinsAvailableResponse](t, rec).CoinsAvailable)
}

func TestCoins_UnknownRoom(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(t, s, http.MethodGet, "/coins/attic", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrorResponse{Error: "Error"}, decode[ErrorResponse](t, rec))
}

func TestRooms_Sorted(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(t, s, http.MethodGet, "/rooms", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RoomsResponse{Rooms: []string{"arena", "lobby"}}, decode[RoomsResponse](t, rec))
}

func TestRoomSummary(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(t, s, http.MethodGet, "/rooms/arena", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[core.RoomSummary](t, rec)
	assert.Equal(t, "arena", summary.Room)
	assert.Equal(t, 2, summary.CoinsAvailable)

	rec = serve(t, s, http.MethodGet, "/rooms/attic", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNearby(t *testing.T) {
	s, _ := newTestServer(t)

	rec := serve(t, s, http.MethodGet, "/coins/lobby/nearby?x=5&y=5&radius=20", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode[streaming.CoinsPayload](t, rec)
	assert.Equal(t, "lobby", payload.Room)
	assert.Len(t, payload.Coins, 4)

	// The arena sits hundreds of units away from the origin.
	rec = serve(t, s, http.MethodGet, "/coins/arena/nearby?x=0&y=0&radius=20", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[streaming.CoinsPayload](t, rec).Coins)
}

func TestNearby_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		target string
		want   int
	}{
		{"/coins/lobby/nearby?x=5&y=5", http.StatusBadRequest},
		{"/coins/lobby/nearby?x=a&y=5&radius=1", http.StatusBadRequest},
		{"/coins/lobby/nearby?x=5&y=5&radius=-1", http.StatusBadRequest},
		{"/coins/attic/nearby?x=5&y=5&radius=1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(t, s, http.MethodGet, tt.target, "", nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestGenerate(t *testing.T) {
	s, eng := newTestServer(t)
	body := `{"room":"vault","roomId":"9","coins":3,"area":{"xmin":0,"xmax":5,"ymin":0,"ymax":5,"zmin":0,"zmax":5}}`

	rec := serve(t, s, http.MethodPost, "/rooms", body, map[string]string{"X-Api-Key": testKey})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	summary := decode[core.RoomSummary](t, rec)
	assert.Equal(t, "vault", summary.Room)
	assert.Equal(t, 3, summary.CoinsAvailable)

	coins, ok := eng.ListAvailable("vault")
	require.True(t, ok)
	assert.Len(t, coins, 3)

	rec = serve(t, s, http.MethodPost, "/rooms?secret="+testKey, body, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, "query secret is accepted too")
}

func TestGenerate_Rejected(t *testing.T) {
	s, _ := newTestServer(t)
	valid := `{"room":"vault","coins":1,"area":{"xmax":1,"ymax":1,"zmax":1}}`

	rec := serve(t, s, http.MethodPost, "/rooms", valid, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, s, http.MethodPost, "/rooms", valid, map[string]string{"X-Api-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, s, http.MethodPost, "/rooms", "{", map[string]string{"X-Api-Key": testKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, s, http.MethodPost, "/rooms", `{"room":"vault","coins":-1}`, map[string]string{"X-Api-Key": testKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerate_DisabledWithoutKey(t *testing.T) {
	s := NewServer(newTestEngine(t), "", nil)
	rec := serve(t, s, http.MethodPost, "/rooms", `{}`, map[string]string{"X-Api-Key": ""})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandle_MountsExtraRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	s.Handle("/ws", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := serve(t, s, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", engine.ErrInvalidQuery), http.StatusBadRequest},
		{&engine.ConfigurationError{Room: "x", Reason: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("%w: redis down", engine.ErrIndexUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
