package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProbe_Alive(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPProbe(time.Second)
	alive, err := p.Alive(context.Background(), srv.URL+"/nexus/")
	require.NoError(t, err)
	assert.True(t, alive)
	assert.Equal(t, "/nexus/service/local/status", gotPath)
}

func TestHTTPProbe_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	alive, err := NewHTTPProbe(time.Second).Alive(context.Background(), srv.URL+"/nexus/")
	assert.False(t, alive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPProbe_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	alive, err := NewHTTPProbe(time.Second).Alive(context.Background(), url+"/")
	assert.False(t, alive)
	assert.Error(t, err)
}

func TestHTTPProbe_CustomPathAndMissingSlash(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	p := &HTTPProbe{StatusPath: "/healthz"}
	alive, err := p.Alive(context.Background(), srv.URL+"/app")
	require.NoError(t, err)
	assert.True(t, alive)
	assert.Equal(t, "/app/healthz", gotPath)
}

func TestProbeFunc(t *testing.T) {
	var p Probe = ProbeFunc(func(ctx context.Context, baseURL string) (bool, error) {
		return baseURL == "up", nil
	})
	alive, _ := p.Alive(context.Background(), "up")
	assert.True(t, alive)
	alive, _ = p.Alive(context.Background(), "down")
	assert.False(t, alive)
}
