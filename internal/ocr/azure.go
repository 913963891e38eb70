package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AzureVision is the fallback engine, backed by the Azure Computer Vision OCR
// endpoint. Lower accuracy on seven-segment meter digits than Gemini, but it
// does return per-word confidence-free structured text quickly.
type AzureVision struct {
	endpoint string
	key      string
	client   *http.Client
}

// NewAzureVision builds the engine. Endpoint is the resource base URL,
// e.g. https://region.cognitiveservices.azure.com/.
func NewAzureVision(endpoint, key string) (*AzureVision, error) {
	if strings.TrimSpace(endpoint) == "" || strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("azure vision endpoint and key are required")
	}
	return &AzureVision{
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		client:   &http.Client{Timeout: 45 * time.Second},
	}, nil
}

func (a *AzureVision) Name() string { return "azure-vision" }

type azureOCRResponse struct {
	Regions []struct {
		Lines []struct {
			Words []struct {
				Text string `json:"text"`
			} `json:"words"`
		} `json:"lines"`
	} `json:"regions"`
}

// Recognize posts the image to the synchronous OCR endpoint and flattens the
// region/line/word hierarchy into newline-separated text.
func (a *AzureVision) Recognize(ctx context.Context, image []byte, hint Hint) (*Text, error) {
	query := url.Values{}
	query.Set("language", "unk")
	query.Set("detectOrientation", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint+"/vision/v3.2/ocr?"+query.Encode(), bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure ocr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure ocr status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed azureOCRResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var sb strings.Builder
	for _, region := range parsed.Regions {
		for _, line := range region.Lines {
			words := make([]string, 0, len(line.Words))
			for _, w := range line.Words {
				words = append(words, w.Text)
			}
			sb.WriteString(strings.Join(words, " "))
			sb.WriteString("\n")
		}
	}

	return &Text{Text: strings.TrimSpace(sb.String())}, nil
}
