package classifier

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

	"github.com/rs/zerolog"

	"house-finance/internal/prediction"
	"house-finance/internal/version"
)

// Model scores feature frames. Implementations return one distribution per row.
type Model interface {
	PredictProba(ctx context.Context, features prediction.Frame) ([]prediction.Distribution, error)
}

const defaultMaxResponseBytes = 32 << 20

// Options parameterise the HTTP model client.
type Options struct {
	Endpoint string
	Timeout  time.Duration
}

// Client calls a model serving endpoint over HTTP.
type Client struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
	maxBody  int64
}

// NewClient constructs a model client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "model_client").Logger(),
		maxBody:  defaultMaxResponseBytes,
	}
}

type predictRequest struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type predictResponse struct {
	Predictions []prediction.Distribution `json:"predictions"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PredictProba posts the declared feature columns and returns the class
// probabilities of each row.
func (c *Client) PredictProba(ctx context.Context, features prediction.Frame) ([]prediction.Distribution, error) {
	if c.endpoint == "" {
		return nil, errors.New("model endpoint not configured")
	}
	if features.Len() == 0 {
		return nil, nil
	}

	reqPayload := predictRequest{Columns: features.Columns, Rows: make([][]any, 0, features.Len())}
	for _, row := range features.Rows {
		values := make([]any, len(features.Columns))
		for i, col := range features.Columns {
			values[i] = row[col]
		}
		reqPayload.Rows = append(reqPayload.Rows, values)
	}

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send predict request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read predict response: %w", err)
	}
	if int64(len(payload)) > c.maxBody {
		return nil, fmt.Errorf("predict response exceeds %d bytes", c.maxBody)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var res predictResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	if len(res.Predictions) != features.Len() {
		return nil, fmt.Errorf("%w: model returned %d predictions for %d rows", prediction.ErrAlignment, len(res.Predictions), features.Len())
	}

	c.logger.Debug().Int("rows", features.Len()).Dur("elapsed", time.Since(started)).Msg("model scored batch")
	return res.Predictions, nil
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("model api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("model api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("model api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("model api error (%d)", status)
}

var _ Model = (*Client)(nil)
