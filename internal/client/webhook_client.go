package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jjiill888/quik/internal/service"
)

// WebhookClient delivers messages by POSTing them to a configured
// endpoint. It is the default Sender collaborator.
type WebhookClient struct {
	url    string
	client *http.Client
}

func NewWebhookClient(url string) *WebhookClient {
	return &WebhookClient{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

var _ service.SendClient = (*WebhookClient)(nil)

type sendPayload struct {
	SubscriptionID int      `json:"subscriptionId"`
	ThreadID       int64    `json:"threadId"`
	Recipients     []string `json:"recipients"`
	Body           string   `json:"body"`
	Attachments    []string `json:"attachments,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

func (c *WebhookClient) Send(ctx context.Context, req service.SendRequest) error {
	reqBody, err := json.Marshal(sendPayload{
		SubscriptionID: req.SubscriptionID,
		ThreadID:       req.ThreadID,
		Recipients:     req.Recipients,
		Body:           req.Body,
		Attachments:    req.Attachments,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if sr.MessageID == "" {
		return fmt.Errorf("missing messageId in response body=%q", string(body))
	}
	return nil
}
