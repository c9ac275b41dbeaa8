package proxy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantari/imagefront/proxy"
)

func TestStatic(t *testing.T) {
	m, err := proxy.Static("http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", m.Current())

	u, err := m.ProxyFunc()(&http.Request{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", u.Host)
}

func TestRefresh_BareHostPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.5:31280\n"))
	}))
	defer srv.Close()

	m := proxy.NewManager(srv.URL, time.Minute)
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, "http://203.0.113.5:31280", m.Current(), "scheme-less address gets http://")
}

func TestRefresh_SchemeKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("socks5://203.0.113.5:1080"))
	}))
	defer srv.Close()

	m := proxy.NewManager(srv.URL, time.Minute)
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, "socks5://203.0.113.5:1080", m.Current())
}

func TestRefresh_ErrorPayloadKeepsPrevious(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.Write([]byte(`{"error":"quota exceeded"}`))
			return
		}
		w.Write([]byte("203.0.113.5:31280"))
	}))
	defer srv.Close()

	m := proxy.NewManager(srv.URL, time.Minute)
	ctx := context.Background()
	require.NoError(t, m.Refresh(ctx))

	fail = true
	err := m.Refresh(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error payload")
	assert.Equal(t, "http://203.0.113.5:31280", m.Current(), "failed refresh keeps the previous proxy")
}

func TestRefresh_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := proxy.NewManager(srv.URL, time.Minute)
	assert.Error(t, m.Refresh(context.Background()))
	assert.Equal(t, "", m.Current())
}

func TestProxyFunc_SeesRefreshes(t *testing.T) {
	addr := "203.0.113.5:31280"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(addr))
	}))
	defer srv.Close()

	m := proxy.NewManager(srv.URL, time.Minute)
	ctx := context.Background()
	require.NoError(t, m.Refresh(ctx))

	fn := m.ProxyFunc()
	u, err := fn(&http.Request{})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5:31280", u.Host)

	// The same func handed to a live transport picks up the new proxy.
	addr = "198.51.100.9:31281"
	require.NoError(t, m.Refresh(ctx))
	u, err = fn(&http.Request{})
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9:31281", u.Host)
}
