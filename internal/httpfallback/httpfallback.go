// Package httpfallback implements the legacy HTTP reverse-sync path: a
// plain POST used when the WebSocket session manager has exhausted its
// reconnect attempts, or when a profile carries a bare url and no
// wsUrl at all. It is a second producer of wire.BatchAckResponse,
// feeding the same ack reconciler as the WebSocket session's `ack`
// bridge.
package httpfallback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bmbridge/bmbridge/internal/redact"
	"github.com/bmbridge/bmbridge/internal/state"
	"github.com/bmbridge/bmbridge/pkg/wire"
)

// MaxReconnectAttemptsBeforeFallback is the threshold:
// once the session manager's reconnect attempt counter reaches this
// value without a successful handshake, callers should route outbound
// batches through Client instead of waiting on the socket.
const MaxReconnectAttemptsBeforeFallback = 8

// Client posts reverse-sync batches to the legacy endpoint.
type Client struct {
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// New builds a Client with standard connection-pool defaults.
func New(logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With().Str("component", "httpfallback").Logger(),
		now:    time.Now,
	}
}

// SendReverseBatch posts coalesced items to <url>/reverse-sync and
// returns the parsed BatchAckResponse. Errors never include the token;
// only its fingerprint appears in logs.
func (c *Client) SendReverseBatch(ctx context.Context, url, token, batchID string, items []state.QueueItem) (wire.BatchAckResponse, error) {
	events := make([]wire.ReverseEvent, 0, len(items))
	for _, it := range items {
		events = append(events, wire.ReverseEvent{
			SchemaVersion: it.Event.SchemaVersion,
			BatchID:       it.Event.BatchID,
			EventID:       it.Event.EventID,
			Type:          it.Event.Type,
			BookmarkID:    it.Event.BookmarkID,
			ManagedKey:    it.Event.ManagedKey,
			Title:         it.Event.Title,
			URL:           it.Event.URL,
			ParentID:      it.Event.ParentID,
			MoveIndex:     it.Event.MoveIndex,
			OccurredAt:    it.Event.OccurredAt,
		})
	}

	body, err := json.Marshal(wire.ReverseSyncRequest{
		BatchID: batchID,
		Events:  events,
		SentAt:  state.NowISO(c.now()),
	})
	if err != nil {
		return wire.BatchAckResponse{}, fmt.Errorf("marshal reverse-sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/reverse-sync", bytes.NewReader(body))
	if err != nil {
		return wire.BatchAckResponse{}, fmt.Errorf("build reverse-sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project2Chrome-Token", token)

	c.logger.Debug().
		Str("endpoint", redact.URL(url)).
		Str("token", redact.Fingerprint(token)).
		Int("events", len(events)).
		Msg("posting reverse-sync batch over legacy fallback")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wire.BatchAckResponse{}, fmt.Errorf("reverse-sync request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.BatchAckResponse{}, fmt.Errorf("read reverse-sync response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return wire.BatchAckResponse{}, fmt.Errorf("reverse-sync returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var ack wire.BatchAckResponse
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return wire.BatchAckResponse{}, fmt.Errorf("decode reverse-sync response: %w", err)
	}
	return ack, nil
}
