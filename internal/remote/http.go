package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultHTTPTimeout = 30 * time.Second

var errMissingBaseURL = errors.New("remote: base url is required")

// HTTPClientConfig configures the HTTP sync client.
type HTTPClientConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTPClient speaks the sync authority's wire protocol: POST /sync/push and
// GET /sync/pull, authenticated with a bearer device token.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient constructs an HTTP sync client.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type pushRequestPayload struct {
	BatchID string         `json:"batch_id"`
	Records []ChangeRecord `json:"records"`
}

type pullResponsePayload struct {
	Records []ChangeRecord `json:"records"`
}

// Push sends one batch. A non-2xx response means no record in the batch may
// be treated as delivered; the caller retries the whole batch later and the
// authority deduplicates by entry id.
func (c *HTTPClient) Push(ctx context.Context, batchID string, records []ChangeRecord) (PushResult, error) {
	body, err := json.Marshal(pushRequestPayload{BatchID: batchID, Records: records})
	if err != nil {
		return PushResult{}, fmt.Errorf("remote: encode push: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sync/push", bytes.NewReader(body))
	if err != nil {
		return PushResult{}, fmt.Errorf("remote: build push request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	c.authorize(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return PushResult{}, fmt.Errorf("%w: push: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn("sync push rejected",
			zap.String("batch_id", batchID),
			zap.Int("status", response.StatusCode))
		return PushResult{}, fmt.Errorf("%w: push status %d", ErrUnavailable, response.StatusCode)
	}

	var result PushResult
	if err := json.NewDecoder(io.LimitReader(response.Body, 1<<20)).Decode(&result); err != nil {
		return PushResult{}, fmt.Errorf("remote: decode push response: %w", err)
	}
	return result, nil
}

// Pull fetches authoritative changes recorded after the cursor.
func (c *HTTPClient) Pull(ctx context.Context, since int64) ([]ChangeRecord, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sync/pull?since="+strconv.FormatInt(since, 10), nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build pull request: %w", err)
	}
	c.authorize(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: pull: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: pull status %d", ErrUnavailable, response.StatusCode)
	}

	var payload pullResponsePayload
	if err := json.NewDecoder(io.LimitReader(response.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("remote: decode pull response: %w", err)
	}
	return payload.Records, nil
}

func (c *HTTPClient) authorize(request *http.Request) {
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}
}

type deviceTokenRequestPayload struct {
	DeviceID string `json:"device_id"`
}

type deviceTokenResponsePayload struct {
	AccessToken string `json:"access_token"`
}

// RequestDeviceToken exchanges a device id for a bearer token at the
// authority's /auth/device endpoint.
func RequestDeviceToken(ctx context.Context, baseURL, deviceID string, httpClient *http.Client) (string, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "", errMissingBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	body, err := json.Marshal(deviceTokenRequestPayload{DeviceID: deviceID})
	if err != nil {
		return "", fmt.Errorf("remote: encode token request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/device", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("remote: build token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: device token: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: device token status %d", ErrUnavailable, response.StatusCode)
	}
	var payload deviceTokenResponsePayload
	if err := json.NewDecoder(io.LimitReader(response.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("remote: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("remote: empty device token")
	}
	return payload.AccessToken, nil
}
