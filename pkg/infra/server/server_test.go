package server_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/scholar-x/pkg/infra/server"
	mwopts "github.com/kart-io/scholar-x/pkg/options/middleware"
	httpopts "github.com/kart-io/scholar-x/pkg/options/server/http"
)

func newTestManager(t *testing.T) *server.Manager {
	t.Helper()

	ho := httpopts.NewOptions()
	ho.Addr = "127.0.0.1:0"

	m := server.NewManager(
		server.WithHTTPOptions(ho),
		server.WithMiddleware(mwopts.NewOptions()),
		server.WithShutdownTimeout(time.Second),
	)

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

func TestManagerServesRegisteredRoutes(t *testing.T) {
	ho := httpopts.NewOptions()
	ho.Addr = "127.0.0.1:0"
	m := server.NewManager(server.WithHTTPOptions(ho))

	m.Engine().GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	require.NoError(t, m.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	}()

	resp, err := http.Get("http://" + m.Addr() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestManagerNoRouteReturnsEnvelope(t *testing.T) {
	m := newTestManager(t)

	resp, err := http.Get("http://" + m.Addr() + "/no/such/route")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), `"code"`)
	assert.Contains(t, string(body), `"message"`)
}

func TestManagerAppliesRequestIDMiddleware(t *testing.T) {
	m := newTestManager(t)
	m.Engine().GET("/id", func(c *gin.Context) { c.Status(http.StatusOK) })

	resp, err := http.Get("http://" + m.Addr() + "/id")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestManagerDoubleStartFails(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.Start(context.Background()))
}

func TestManagerStartFailsOnBusyPort(t *testing.T) {
	first := newTestManager(t)

	ho := httpopts.NewOptions()
	ho.Addr = first.Addr()
	second := server.NewManager(server.WithHTTPOptions(ho))

	err := second.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestManagerStopIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx))
}
