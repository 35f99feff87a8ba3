package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCapability_Invoke(t *testing.T) {
	var gotPath string
	var gotBody invokeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Write([]byte(`{"findings":[]}`))
	}))
	defer srv.Close()

	c := NewHTTPCapability(srv.URL)
	out, err := c.Invoke(context.Background(), map[string]interface{}{"target": "h"}, []byte("prior-data"))
	require.NoError(t, err)
	assert.Equal(t, `{"findings":[]}`, string(out))
	assert.Equal(t, "/invoke", gotPath)
	assert.Equal(t, "h", gotBody.Config["target"])
	assert.Equal(t, "prior-data", string(gotBody.Prior))
}

func TestHTTPCapability_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPCapability(srv.URL)
	_, err := c.Invoke(context.Background(), nil, nil)
	assert.True(t, Retryable(err))
}

func TestHTTPCapability_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPCapability(srv.URL)
	_, err := c.Invoke(context.Background(), nil, nil)
	require.Error(t, err)
	assert.False(t, Retryable(err))

	var me *ModuleError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, KindFailure, me.Kind)
}

func TestHTTPCapability_ConnectionErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewHTTPCapability(srv.URL)
	_, err := c.Invoke(context.Background(), nil, nil)
	assert.True(t, Retryable(err))
}
