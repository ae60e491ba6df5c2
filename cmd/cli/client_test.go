package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_AuthHeader(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "with token", token: "s3cret", want: "Bearer s3cret"},
		{name: "without token", token: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				w.Write([]byte(`[]`))
			}))
			defer server.Close()

			_, err := newClient(server.URL+"/", tt.token, false).Get("/api/v1/tests", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"Cannot cancel completed test"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down\n"))
		}
	}))
	defer server.Close()
	client := newClient(server.URL, "", false)

	_, err := client.Delete("/json")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "API error (400): Cannot cancel completed test", err.Error())

	_, err = client.Get("/plain", nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Message)
}

func TestClient_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("from"))
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: {\"n\":%d}\n\n", i)
		}
		fmt.Fprint(w, ": keep-alive comment\n\n")
	}))
	defer server.Close()

	var got []string
	err := newClient(server.URL, "", false).Stream(context.Background(), "/events", url.Values{"from": {"3"}}, func(data []byte) bool {
		got = append(got, string(data))
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"n":0}`, `{"n":1}`, `{"n":2}`}, got)

	got = nil
	err = newClient(server.URL, "", false).Stream(context.Background(), "/events", url.Values{"from": {"3"}}, func(data []byte) bool {
		got = append(got, string(data))
		return false
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
