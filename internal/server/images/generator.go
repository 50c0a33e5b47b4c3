package images

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andrejs2008/evomint/internal/common"
)

// negativePrompt steers the synthesis away from common artifacts.
const negativePrompt = "blurry, low quality, distorted, watermark, text, signature"

const defaultGeneratorTimeout = 60 * time.Second

// Generator produces raw image bytes for a prompt. A nil Generator in the
// Service means synthesis is off and items get placeholder references.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error)
}

// StabilityConfig configures the SDXL text-to-image endpoint.
type StabilityConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// StabilityClient talks to a Stability-compatible text-to-image API.
type StabilityClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewStabilityClient(cfg StabilityConfig) *StabilityClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGeneratorTimeout
	}
	return &StabilityClient{
		baseURL: trimSlash(cfg.BaseURL),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type weightedPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type synthesisRequest struct {
	TextPrompts []weightedPrompt `json:"text_prompts"`
	CfgScale    float64          `json:"cfg_scale"`
	Height      int              `json:"height"`
	Width       int              `json:"width"`
	Samples     int              `json:"samples"`
	Steps       int              `json:"steps"`
	Seed        int64            `json:"seed"`
}

type synthesisResponse struct {
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
}

// GenerateImage renders one 1024x1024 image and returns the decoded bytes.
func (c *StabilityClient) GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error) {
	payload := synthesisRequest{
		TextPrompts: []weightedPrompt{
			{Text: prompt, Weight: 1},
			{Text: negativePrompt, Weight: -1},
		},
		CfgScale: 7.5,
		Height:   1024,
		Width:    1024,
		Samples:  1,
		Steps:    30,
		Seed:     seed,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode synthesis request: %v", common.ErrSerialization, err)
	}

	url := c.baseURL + "/v1/generation/stable-diffusion-xl-1024-v1-0/text-to-image"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read synthesis reply: %v", common.ErrCollaborator, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: synthesis replied %d", common.ErrCollaborator, resp.StatusCode)
	}

	var out synthesisResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode synthesis reply: %v", common.ErrSerialization, err)
	}
	if len(out.Artifacts) == 0 {
		return nil, fmt.Errorf("%w: synthesis reply carried no artifacts", common.ErrCollaborator)
	}

	img, err := base64.StdEncoding.DecodeString(out.Artifacts[0].Base64)
	if err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %v", common.ErrSerialization, err)
	}
	return img, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
