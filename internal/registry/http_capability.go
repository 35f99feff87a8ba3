package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPCapability invokes a module deployed behind an HTTP endpoint. The
// module receives the step config and the prior step's output and responds
// with an opaque result payload.
type HTTPCapability struct {
	url    string
	client *http.Client
}

// NewHTTPCapability creates a new HTTPCapability for the given endpoint.
func NewHTTPCapability(url string) *HTTPCapability {
	return &HTTPCapability{url: url, client: http.DefaultClient}
}

type invokeRequest struct {
	Config map[string]interface{} `json:"config,omitempty"`
	Prior  []byte                 `json:"prior,omitempty"`
}

// Invoke posts the invocation to the module endpoint and returns the raw
// response body. 5xx responses are reported as retryable; 4xx as permanent.
func (c *HTTPCapability) Invoke(ctx context.Context, config map[string]interface{}, prior []byte) ([]byte, error) {
	requestBody, err := json.Marshal(invokeRequest{Config: config, Prior: prior})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/invoke", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ModuleError{Kind: KindRetryable, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ModuleError{Kind: KindRetryable, Message: "failed to read response body: " + err.Error()}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &ModuleError{Kind: KindRetryable, Message: fmt.Sprintf("module returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &ModuleError{Kind: KindFailure, Message: fmt.Sprintf("module returned status %d: %s", resp.StatusCode, body)}
	}

	return body, nil
}
