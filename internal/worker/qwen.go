package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// QwenOptions configures the DashScope text-to-image client.
type QwenOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Size        string
	Watermark   bool
	HTTPClient  *http.Client
	Timeout     time.Duration
	MaxDownload int64
}

// QwenGenerator renders prompts with DashScope's Qwen image model and
// downloads the result so it can be re-hosted.
type QwenGenerator struct {
	apiKey      string
	baseURL     string
	model       string
	size        string
	watermark   bool
	maxDownload int64
	httpClient  *http.Client
}

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []qwenMessage `json:"messages"`
	} `json:"input"`
	Parameters qwenParams `json:"parameters"`
}

type qwenMessage struct {
	Role    string        `json:"role"`
	Content []qwenContent `json:"content"`
}

type qwenContent struct {
	Text string `json:"text,omitempty"`
}

type qwenParams struct {
	Size      string `json:"size,omitempty"`
	Watermark bool   `json:"watermark"`
	Seed      int    `json:"seed,omitempty"`
}

type qwenResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"usage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewQwenGenerator(opts QwenOptions) *QwenGenerator {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-plus"
	}
	size := strings.TrimSpace(opts.Size)
	if size == "" {
		size = "1328*1328"
	}
	maxDownload := opts.MaxDownload
	if maxDownload <= 0 {
		maxDownload = 20 << 20
	}
	return &QwenGenerator{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     base,
		model:       model,
		size:        size,
		watermark:   opts.Watermark,
		maxDownload: maxDownload,
		httpClient:  client,
	}
}

func (g *QwenGenerator) Model() string { return g.model }

func (g *QwenGenerator) Generate(ctx context.Context, prompt, jobID string) (*Image, error) {
	if g.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	var payload qwenRequest
	payload.Model = g.model
	payload.Input.Messages = []qwenMessage{{Role: "user", Content: []qwenContent{{Text: prompt}}}}
	payload.Parameters = qwenParams{Size: g.size, Watermark: g.watermark, Seed: seedFor(jobID, prompt)}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("qwen: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/services/aigc/multimodal-generation/generation", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("qwen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qwen: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("qwen: read response: %w", err)
	}

	var out qwenResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode >= http.StatusMultipleChoices {
		if decodeErr == nil && out.Message != "" {
			return nil, fmt.Errorf("qwen: %s (%s)", out.Message, out.Code)
		}
		return nil, fmt.Errorf("qwen: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("qwen: decode response: %w", decodeErr)
	}
	if out.Code != "" {
		return nil, fmt.Errorf("qwen: %s (%s)", out.Message, out.Code)
	}
	imageURL := firstImageURL(out)
	if imageURL == "" {
		return nil, errors.New("qwen: empty image url")
	}

	data, format, err := g.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	img := &Image{Data: data, Format: format, Width: out.Usage.Width, Height: out.Usage.Height, SourceURL: imageURL}
	if img.Width == 0 || img.Height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			img.Width, img.Height = cfg.Width, cfg.Height
		}
	}
	return img, nil
}

func (g *QwenGenerator) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("qwen: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: build download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("qwen: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("qwen: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, g.maxDownload))
	if err != nil {
		return nil, "", fmt.Errorf("qwen: read image: %w", err)
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = http.DetectContentType(data)
	}
	return data, format, nil
}

func firstImageURL(resp qwenResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

var _ Generator = (*QwenGenerator)(nil)
