package suggest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSuggestReturnsAPIReplies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Transcript string `json:"transcript"`
			Count      int    `json:"count"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Count)
		assert.Contains(t, req.Transcript, "user: help")
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]string{"Sure!", "On it.", "One moment."})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", zap.NewNop())
	replies := client.Suggest(context.Background(), "user: help\n")
	assert.Equal(t, []string{"Sure!", "On it.", "One moment."}, replies)
}

func TestSuggestFallsBackWithoutEndpoint(t *testing.T) {
	client := NewClient("", "", zap.NewNop())
	assert.Equal(t, FallbackReplies, client.Suggest(context.Background(), "anything"))
}

func TestSuggestFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", zap.NewNop())
	assert.Equal(t, FallbackReplies, client.Suggest(context.Background(), ""))
}

func TestSuggestFallsBackOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", zap.NewNop())
	assert.Equal(t, FallbackReplies, client.Suggest(context.Background(), ""))
}

func TestParseRepliesContract(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"exactly three", `["a","b","c"]`, true},
		{"two replies", `["a","b"]`, false},
		{"four replies", `["a","b","c","d"]`, false},
		{"empty reply", `["a","","c"]`, false},
		{"not an array", `"a"`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			replies, err := ParseReplies(json.NewDecoder(strings.NewReader(tc.body)))
			if tc.ok {
				require.NoError(t, err)
				assert.Len(t, replies, 3)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
