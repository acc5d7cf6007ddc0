package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteRendererMarkdownResponse(t *testing.T) {
	var received convertRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/convert", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte("# From worker\n"))
	}))
	defer srv.Close()

	r := NewRemoteRenderer(srv.Client(), srv.URL+"/")
	out, err := r.Render(context.Background(), sampleDocument(), "https://example.com/hello")
	require.NoError(t, err)
	assert.Equal(t, "# From worker\n", out)
	assert.Equal(t, "https://example.com/hello", received.URL)
	assert.Equal(t, "html", received.Format)
}

func TestRemoteRendererJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"markdown":"converted"}`))
	}))
	defer srv.Close()

	out, err := NewRemoteRenderer(srv.Client(), srv.URL).Render(context.Background(), sampleDocument(), "u")
	require.NoError(t, err)
	assert.Equal(t, "converted", out)
}

func TestRemoteRendererFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		},
		"json error": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":"unsupported"}`))
		},
		"empty": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()
			_, err := NewRemoteRenderer(srv.Client(), srv.URL).Render(context.Background(), sampleDocument(), "u")
			assert.Error(t, err)
		})
	}
}
