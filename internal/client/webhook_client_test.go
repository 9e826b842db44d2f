package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jjiill888/quik/internal/service"
)

func TestWebhookClient_Send_Success(t *testing.T) {
	t.Parallel()

	var got sendPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"messageId": "remote-1"})
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL)

	err := c.Send(context.Background(), service.SendRequest{
		SubscriptionID: 2,
		ThreadID:       77,
		Recipients:     []string{"+15550001"},
		Body:           "hello",
		Attachments:    []string{"content://img/1"},
	})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	if got.SubscriptionID != 2 || got.ThreadID != 77 || got.Body != "hello" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if len(got.Recipients) != 1 || got.Recipients[0] != "+15550001" {
		t.Errorf("unexpected recipients: %v", got.Recipients)
	}
	if len(got.Attachments) != 1 {
		t.Errorf("unexpected attachments: %v", got.Attachments)
	}
}

func TestWebhookClient_Send_NonAcceptedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL)

	err := c.Send(context.Background(), service.SendRequest{
		Recipients: []string{"+15550002"},
		Body:       "fails",
	})
	if err == nil {
		t.Fatalf("expected error for non-202 status, got nil")
	}
}

func TestWebhookClient_Send_MissingMessageID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL)

	err := c.Send(context.Background(), service.SendRequest{
		Recipients: []string{"+15550003"},
		Body:       "no id",
	})
	if err == nil {
		t.Fatalf("expected error for missing messageId, got nil")
	}
}

func TestWebhookClient_Send_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Send(ctx, service.SendRequest{Recipients: []string{"+15550004"}}); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}
