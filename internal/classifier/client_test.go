package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"house-finance/internal/prediction"
)

func testFrame() prediction.Frame {
	return prediction.Frame{
		Columns: []string{"normalized", "weekday"},
		Rows: []prediction.Row{
			{"normalized": "שופרסל", "weekday": 2, "description": "ignored"},
			{"normalized": "דלק", "weekday": 4},
		},
	}
}

func TestPredictProbaSuccess(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"predictions": [][]map[string]any{
				{{"class": "20", "proba": 0.8}, {"class": "17", "proba": 0.2}},
				{{"class": "17", "proba": 0.95}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL, Timeout: time.Second}, zerolog.Nop())
	probs, err := c.PredictProba(context.Background(), testFrame())
	require.NoError(t, err)
	require.Len(t, probs, 2)

	top, ok := probs[0].Top()
	require.True(t, ok)
	assert.Equal(t, "20", top.Class)
	assert.Equal(t, 0.8, top.Proba)

	assert.Equal(t, []string{"normalized", "weekday"}, got.Columns)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, []any{"שופרסל", float64(2)}, got.Rows[0])
}

func TestPredictProbaMisaligned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": [][]map[string]any{{{"class": "1", "proba": 1}}}})
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL}, zerolog.Nop())
	_, err := c.PredictProba(context.Background(), testFrame())
	assert.ErrorIs(t, err, prediction.ErrAlignment)
}

func TestPredictProbaHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL}, zerolog.Nop())
	_, err := c.PredictProba(context.Background(), testFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
	assert.Contains(t, err.Error(), "503")
}

func TestPredictProbaEmptyFrameSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL}, zerolog.Nop())
	probs, err := c.PredictProba(context.Background(), prediction.Frame{Columns: []string{"a"}})
	require.NoError(t, err)
	assert.Empty(t, probs)
	assert.False(t, called)
}

func TestPredictProbaNoEndpoint(t *testing.T) {
	_, err := NewClient(Options{}, zerolog.Nop()).PredictProba(context.Background(), testFrame())
	assert.Error(t, err)
}

func TestPredictProbaOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions": [[{"class": "20", "proba": 0.8}], [{"class": "17", "proba": 0.95}]]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{Endpoint: srv.URL}, zerolog.Nop())
	c.maxBody = 16
	_, err := c.PredictProba(context.Background(), testFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")

	c.maxBody = defaultMaxResponseBytes
	probs, err := c.PredictProba(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Len(t, probs, 2)
}
