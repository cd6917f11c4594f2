package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
)

func TestWebhookChatPostsBodyAndDecodesMessages(t *testing.T) {
	var got ChatRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/hook", r.URL.Path)
		gotKey = r.Header.Get("x-api-key")
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"messages":[
			{"role":"assistant","content":"","tool_calls":[{"id":"c1","name":"search","arguments":"{}"}]},
			{"role":"tool","tool_call_id":"c1","content":"3 results"},
			{"role":"assistant","content":"done"}
		]}`)
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL+"/hook/", "x-api-key", "secret", time.Second, nil)
	msgs, err := c.Chat(context.Background(), ChatRequest{UserQuery: "find", SessionID: "s1", Model: "m", Image: "aW1n"})
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, ChatRequest{UserQuery: "find", SessionID: "s1", Model: "m", Image: "aW1n"}, got)
	require.Len(t, msgs, 3)
	assert.Equal(t, "done", msgs[2].Content.String())
}

func TestWebhookChatErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"non-200", http.StatusBadGateway, "upstream down", apperr.ErrProtocol},
		{"malformed envelope", http.StatusOK, "{", apperr.ErrProtocol},
		{"success false", http.StatusOK, `{"success":false,"error":"nope"}`, apperr.ErrProtocol},
		{"missing messages", http.StatusOK, `{"success":true}`, apperr.ErrProtocol},
		{"invalid message", http.StatusOK, `{"success":true,"messages":[{"role":"tool","content":"x"}]}`, apperr.ErrProtocol},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			c := NewWebhookClient(srv.URL, "", "", time.Second, nil)
			_, err := c.Chat(context.Background(), ChatRequest{UserQuery: "q"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestWebhookChatTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewWebhookClient(url, "", "", time.Second, nil)
	_, err := c.Chat(context.Background(), ChatRequest{UserQuery: "q"})
	assert.True(t, errors.Is(err, apperr.ErrTransport), "got %v", err)
}

func TestWebhookStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hook/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"chunk\":\"Hi\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"complete\",\"token_usage\":[1,2]}\n\n")
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL+"/hook", "", "", time.Second, nil)
	d, err := c.Stream(context.Background(), ChatRequest{UserQuery: "q"})
	require.NoError(t, err)

	var kinds []EventKind
	for ev := range d.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventContent, EventComplete}, kinds)
	assert.Equal(t, "Hi", d.Text())
}

func TestWebhookStreamNon200ReturnsNoDecoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL, "", "", time.Second, nil)
	d, err := c.Stream(context.Background(), ChatRequest{UserQuery: "q"})
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, apperr.ErrProtocol))
}
