// Package tagging provides a client for the image classification
// microservice that predicts descriptive labels for uploaded photos.
package tagging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"sort"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ConfidenceThreshold filters weak predictions. When nothing clears it
// the single best prediction is kept so an image never ends up with no
// labels at all.
const ConfidenceThreshold = 0.08

// Prediction is one label with its confidence score
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Client talks to the classification service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a classification client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type classifyResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// PredictTags classifies the image bytes and returns the labels above
// ConfidenceThreshold, or the single most confident label when none
// clear it. filename only informs the service of the image format.
func (c *Client) PredictTags(ctx context.Context, filename string, data []byte) ([]string, error) {
	preds, err := c.classify(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	return SelectLabels(preds), nil
}

// classify uploads the image and returns the raw predictions
func (c *Client) classify(ctx context.Context, filename string, data []byte) ([]Prediction, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", path.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classification service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("classification service returned %d: %s", resp.StatusCode, detail)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode classification response: %w", err)
	}
	return result.Predictions, nil
}

// SelectLabels applies the confidence threshold with the best-label
// fallback. Exported so the selection rule is testable without the
// service.
func SelectLabels(preds []Prediction) []string {
	if len(preds) == 0 {
		return nil
	}

	sorted := make([]Prediction, len(preds))
	copy(sorted, preds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var labels []string
	for _, p := range sorted {
		if p.Confidence > ConfidenceThreshold {
			labels = append(labels, p.Label)
		}
	}
	if len(labels) == 0 {
		labels = []string{sorted[0].Label}
	}
	return labels
}
