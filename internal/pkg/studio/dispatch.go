package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oakbijoux/oakstudio/internal/pkg/env"
)

// SecretHeader carries the shared secret on both the outbound dispatch and
// the inbound callback.
const SecretHeader = "X-Oak-Secret"

// DispatchPayload is the wire format handed to the external workflow engine.
type DispatchPayload struct {
	GenerationID string `json:"generationId"`
	JewelryURL   string `json:"jewelryUrl"`
	JewelryType  string `json:"jewelryType"`
	PromptModel  string `json:"promptModel"`
	PromptDecor  string `json:"promptDecor"`
	CallbackURL  string `json:"callbackUrl"`
	HasWatermark bool   `json:"hasWatermark"`
	Resolution   string `json:"resolution"`
	StartTime    string `json:"startTime"`
}

// Dispatcher hands a generation to the external workflow engine. Dispatch is
// fire-and-forget; the result arrives later on the callback endpoint.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload DispatchPayload) error
}

// WorkflowClient is the HTTP implementation of Dispatcher.
type WorkflowClient struct {
	WebhookURL string
	Secret     string

	HTTPClient *http.Client
}

// NewWorkflowClientFromEnv builds a dispatch client from OAK_WEBHOOK_URL and
// OAK_WEBHOOK_SECRET.
func NewWorkflowClientFromEnv() *WorkflowClient {
	return &WorkflowClient{
		WebhookURL: strings.TrimSpace(env.GetEnv("OAK_WEBHOOK_URL", "")),
		Secret:     strings.TrimSpace(env.GetEnv("OAK_WEBHOOK_SECRET", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Dispatch posts the payload to the workflow engine. A non-2xx response is a
// dispatch failure; the engine's error body is folded into the error.
func (c *WorkflowClient) Dispatch(ctx context.Context, payload DispatchPayload) error {
	if strings.TrimSpace(c.WebhookURL) == "" {
		return errors.New("OAK_WEBHOOK_URL is not configured")
	}
	if payload.StartTime == "" {
		payload.StartTime = time.Now().UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, c.Secret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach workflow engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("workflow engine returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
