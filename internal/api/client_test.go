// internal/api/client_test.go
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coinhunt/roomengine/pkg/core"
)

func newLiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(newTestEngine(t), testKey, slog.New(slog.DiscardHandler)))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	c := New("http://localhost:3000", "secret123")
	require.NotNil(t, c)
	assert.Equal(t, "http://localhost:3000", c.baseURL)
	assert.Equal(t, "secret123", c.apiKey)
	assert.NotNil(t, c.httpClient)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:3000/", "secret")
	assert.Equal(t, "http://localhost:3000", c.baseURL)
}

func TestClient_Healthcheck(t *testing.T) {
	srv := newLiveServer(t)
	assert.NoError(t, New(srv.URL, "").Healthcheck())
}

func TestClient_Healthcheck_ServerDown(t *testing.T) {
	c := New("http://localhost:59999", "") // unlikely to be listening
	assert.Error(t, c.Healthcheck())
}

func TestClient_Healthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New(server.URL, "").Healthcheck()
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
}

func TestClient_Queries(t *testing.T) {
	srv := newLiveServer(t)
	c := New(srv.URL, "")

	rooms, err := c.Rooms()
	require.NoError(t, err)
	assert.Equal(t, []string{"arena", "lobby"}, rooms)

	n, err := c.CoinsAvailable("lobby")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	summary, err := c.Room("arena")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CoinsAvailable)

	coins, err := c.Nearby("lobby", 5, 5, 20)
	require.NoError(t, err)
	assert.Len(t, coins, 4)
}

func TestClient_NotFound(t *testing.T) {
	srv := newLiveServer(t)
	c := New(srv.URL, "")

	_, err := c.CoinsAvailable("attic")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "Error", se.Message)
}

func TestClient_Generate(t *testing.T) {
	srv := newLiveServer(t)

	summary, err := New(srv.URL, testKey).Generate(core.RoomConfig{
		Room:  "vault",
		Coins: 2,
		Area:  core.RoomArea{XMax: 3, YMax: 3, ZMax: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "vault", summary.Room)
	assert.Equal(t, 2, summary.CoinsAvailable)

	_, err = New(srv.URL, "wrong").Generate(core.RoomConfig{Room: "vault", Coins: 1})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}
