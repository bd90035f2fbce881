package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/espressomap/espressomap/internal/entity"
)

// HTTPClient calls the vision-extraction endpoint: POST a JSON body
// {image: base64, mediaType} with a bearer token, decode
// {success, drinks: [{name, price}, ...]}.
type HTTPClient struct {
	url    string
	tokens TokenProvider
	client *http.Client
	logger *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(url string, tokens TokenProvider, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &HTTPClient{
		url:    url,
		tokens: tokens,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *HTTPClient) Extract(ctx context.Context, imageBytes []byte) ([]entity.DrinkPrice, error) {
	rid := uuid.New().String()
	start := time.Now()

	payload, mediaType, err := CompressForUpload(imageBytes)
	if err != nil {
		c.logger.Error("extraction.compress_failed", "req_id", rid, "error", err)
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	body, err := json.Marshal(extractRequest{
		Image:     base64.StdEncoding.EncodeToString(payload),
		MediaType: mediaType,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	c.logger.Info("extraction.request",
		"req_id", rid,
		"image_bytes", len(payload),
		"content_length", len(body),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("extraction.send_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("extraction.response_body_close_error", "req_id", rid, "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)

	c.logger.Info("extraction.response",
		"req_id", rid,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.tokens.Invalidate()
		return nil, ErrAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, c.serverError(resp.StatusCode, raw)
	}

	if err := validateAgainstSchema(buildResponseSchema(), raw); err != nil {
		c.logger.Error("extraction.schema_validation_failed", "req_id", rid, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var decoded extractResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if !decoded.Success {
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: decoded.Message}
	}

	c.logger.Info("extraction.ok", "req_id", rid, "drinks", len(decoded.Drinks), "elapsed_ms", time.Since(start).Milliseconds())
	return decoded.Drinks, nil
}

// serverError decodes the endpoint's {error, message} body best-effort.
func (c *HTTPClient) serverError(status int, raw []byte) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)
	msg := body.Message
	if msg == "" {
		msg = body.Error
	}
	return &ServerError{StatusCode: status, Message: msg}
}
