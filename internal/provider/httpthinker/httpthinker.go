// Package httpthinker implements internal/provider's Thinker by POSTing
// the entity's wake context as JSON to a configured HTTP endpoint and
// reading back a command string. It is a reference shim: the endpoint
// is responsible for whatever inference actually picks the command (an
// LLM, a script, a human-in-the-loop form) — O only speaks the wire
// contract.
package httpthinker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mutantcacti/o/internal/buildinfo"
	"github.com/mutantcacti/o/internal/provider"
	"github.com/mutantcacti/o/internal/world"
)

// maxResponseBody bounds how much of an oversized or malicious
// response body is read before giving up.
const maxResponseBody = 1 << 20 // 1 MiB

// Config configures a Thinker's target endpoint.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Thinker is a provider.Thinker backed by a single HTTP endpoint.
type Thinker struct {
	endpoint string
	client   *http.Client
}

// New builds a Thinker. A zero Timeout defaults to 30 seconds.
func New(cfg Config) *Thinker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Thinker{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// thinkRequest is the wire shape POSTed to Endpoint.
type thinkRequest struct {
	Entity     string   `json:"entity"`
	Clock      int      `json:"clock"`
	Spaces     []string `json:"spaces"`
	WakeReason string   `json:"wake_reason"`
}

// thinkResponse is the wire shape expected back. Command empty (and
// Skip unset or false) also counts as "no command this tick" —
// Skip exists for an endpoint to be explicit about it.
type thinkResponse struct {
	Command string `json:"command"`
	Skip    bool   `json:"skip"`
}

// Think POSTs entity's wake context to the configured endpoint and
// returns the command the endpoint selected, if any.
func (t *Thinker) Think(ctx context.Context, entity world.EntityID, snapshot provider.Context) (string, bool, error) {
	spaces := make([]string, len(snapshot.Spaces))
	for i, s := range snapshot.Spaces {
		spaces[i] = string(s)
	}
	body, err := json.Marshal(thinkRequest{
		Entity:     string(entity),
		Clock:      snapshot.Clock,
		Spaces:     spaces,
		WakeReason: snapshot.WakeReason,
	})
	if err != nil {
		return "", false, fmt.Errorf("httpthinker: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("httpthinker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("httpthinker: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("httpthinker: endpoint returned status %d: %s", resp.StatusCode, errBody)
	}

	var out thinkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return "", false, fmt.Errorf("httpthinker: decode response: %w", err)
	}
	if out.Skip || out.Command == "" {
		return "", false, nil
	}
	return out.Command, true, nil
}
