package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/OldStager01/farm-bi/internal/logger"
)

type HTTPRequester struct {
	client   *http.Client
	endpoint string
}

type HTTPRequesterConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPRequester(cfg HTTPRequesterConfig) *HTTPRequester {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPRequester{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint: cfg.Endpoint,
	}
}

type backupResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (r *HTTPRequester) RequestBackup(ctx context.Context, breq Request) error {
	body, err := json.Marshal(breq)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: unexpected status code %d", ErrRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrRequestFailed, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var bresp backupResponse
	if err := json.Unmarshal(data, &bresp); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	logger.WithFields(map[string]interface{}{
		"period":    breq.Period,
		"backup_id": bresp.ID,
		"status":    bresp.Status,
	}).Debug("Backup accepted")

	return nil
}

func (r *HTTPRequester) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
