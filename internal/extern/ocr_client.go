package extern

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPOCRClient calls the OCR model service over HTTP. The service takes
// the blob-store URL of a text capture and returns the recognized text;
// recognition is slow, so the default timeout is generous.
type HTTPOCRClient struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

// NewHTTPOCRClient builds an OCR client for the given service endpoint.
// A zero timeout defaults to 30 seconds.
func NewHTTPOCRClient(endpoint string, timeout time.Duration, log *zap.Logger) *HTTPOCRClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPOCRClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type ocrRequest struct {
	ImageURL string `json:"image_url"`
}

type ocrResponse struct {
	Success       bool   `json:"success"`
	ExtractedText string `json:"extracted_text"`
	Error         string `json:"error"`
}

// ExtractText submits the image URL to the OCR service and returns the
// recognized text. An unsuccessful recognition is an error; the caller's
// retry loop decides what to do with it.
func (c *HTTPOCRClient) ExtractText(ctx context.Context, imageURL string) (string, error) {
	payload, err := json.Marshal(ocrRequest{ImageURL: imageURL})
	if err != nil {
		return "", fmt.Errorf("failed to encode ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("failed to close ocr response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service returned status %d", resp.StatusCode)
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode ocr response: %w", err)
	}
	if !out.Success {
		return "", fmt.Errorf("ocr service reported failure: %s", out.Error)
	}
	return out.ExtractedText, nil
}
