package cbdstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"cbd-eventstream/internal/logging"
)

var ErrNoNetworks = errors.New("at least one network id is required")

type subscribePayload struct {
	NetworkIDs []string `json:"network-ids"`
}

// Subscribe registers networkIDs as the server-side filter for streams opened
// with monitored-networks=subscribed. Only 204 No Content is success.
func (c Client) Subscribe(ctx context.Context, url, token string, networkIDs []string) error {
	ids := make([]string, 0, len(networkIDs))
	for _, id := range networkIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return &SubscriptionError{Err: ErrNoNetworks}
	}

	payload, err := json.Marshal(subscribePayload{NetworkIDs: ids})
	if err != nil {
		return &SubscriptionError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &SubscriptionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.Logger.Debug("subscribing to networks",
		logging.Field("url", url),
		logging.Field("request", string(payload)),
	)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &SubscriptionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	subErr := &SubscriptionError{StatusCode: resp.StatusCode, Status: resp.Status}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		subErr.Payload = logging.FormatHTTPPayload(data)
	}
	c.Logger.Warn("subscription failed",
		logging.Field("status", resp.Status),
		logging.Field("response", logging.FormatHTTPPayload(data)),
	)
	return subErr
}
