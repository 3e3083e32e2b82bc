package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "warm", body["query"])
		assert.Equal(t, "voyage-text-rerank", body["provider"])
		assert.Equal(t, true, body["generate"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":1,"items":[{"record":{"id":"a"}}]}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, runSearch(resty.New().SetBaseURL(srv.URL), "warm", "voyage-text-rerank", true, &out))
	assert.Contains(t, out.String(), `"count": 1`)

	assert.Error(t, runSearch(resty.New().SetBaseURL(srv.URL), "", "voyage-text", false, &out))
}

func TestRunSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Service Unavailable","code":503}`))
	}))
	defer srv.Close()

	err := runSearch(resty.New().SetBaseURL(srv.URL), "warm", "voyage-text", false, &bytes.Buffer{})
	assert.ErrorContains(t, err, "http 503")
}

func TestRunImageSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search/image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "voyage-image", r.FormValue("provider"))
		f, _, err := r.FormFile("image")
		require.NoError(t, err)
		defer f.Close()
		_, _ = w.Write([]byte(`{"count":0,"items":[]}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "dish.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0o600))
	var out bytes.Buffer
	require.NoError(t, runImageSearch(resty.New().SetBaseURL(srv.URL), path, "voyage-text", false, &out))
	assert.Contains(t, out.String(), `"count": 0`)
}
