package llmservice

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"

	"helpcenter-rag/internal/helper"
)

const (
	maxCaptionChars    = 220
	maxSurroundingText = 600
	visionMaxTokens    = 80
	visionTemperature  = 0.2
)

var refusalSnippets = []string{
	"não posso ver", "não consigo ver", "não posso analisar", "não consigo analisar",
	"i can't view", "i cannot view", "unable to view", "can't see", "i'm sorry", "i am sorry",
	"no puedo ver", "lo siento",
}

const visionPrompt = `Describe this help center screenshot in 1-2 objective sentences for a tutorial.
Focus on the visible section, action and buttons. Do not include apologies or warnings.`

// ContentGenerator is the subset of Client used for multimodal prompts.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, opts Options) (string, error)
}

// VisionDescriber downloads images and asks a vision model for a short caption.
type VisionDescriber struct {
	gen       ContentGenerator
	http      *http.Client
	maxBytes  int64
	minPixels int
	logger    zerolog.Logger
}

// NewVisionDescriber creates a describer. maxBytes bounds the download and
// images narrower or shorter than minPixels are skipped.
func NewVisionDescriber(gen ContentGenerator, httpClient *http.Client, maxBytes int64, minPixels int) *VisionDescriber {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &VisionDescriber{
		gen:       gen,
		http:      httpClient,
		maxBytes:  maxBytes,
		minPixels: minPixels,
		logger:    log.With().Str("component", "vision").Logger(),
	}
}

// Describe returns a caption for the image, or an empty string when the image
// is not worth describing (animated, tiny, not an image, or the model refused).
func (d *VisionDescriber) Describe(ctx context.Context, imageURL, surroundingText string) (string, error) {
	data, contentType, err := d.download(ctx, imageURL)
	if err != nil {
		return "", err
	}

	mime := http.DetectContentType(data)
	if strings.Contains(strings.ToLower(contentType), "gif") || mime == "image/gif" {
		d.logger.Debug().Str("url", imageURL).Msg("Skipping animated image")
		return "", nil
	}
	if !strings.HasPrefix(mime, "image/") {
		d.logger.Debug().Str("url", imageURL).Str("mime", mime).Msg("Skipping non-image content")
		return "", nil
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if cfg.Width < d.minPixels || cfg.Height < d.minPixels {
			d.logger.Debug().Str("url", imageURL).Int("width", cfg.Width).Int("height", cfg.Height).Msg("Skipping small image")
			return "", nil
		}
	}

	prompt := visionPrompt
	if surroundingText = strings.TrimSpace(surroundingText); surroundingText != "" {
		prompt += "\nText around the image: " + helper.TruncateWords(surroundingText, maxSurroundingText)
	}

	raw, err := d.gen.GenerateContent(ctx, []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(prompt),
				llms.BinaryPart(mime, data),
			},
		},
	}, Options{Temperature: visionTemperature, MaxTokens: visionMaxTokens})
	if err != nil {
		return "", fmt.Errorf("describe image %s: %w", imageURL, err)
	}
	return SanitizeCaption(raw), nil
}

func (d *VisionDescriber) download(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image %s: unexpected status %d", imageURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image %s: %w", imageURL, err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, "", fmt.Errorf("image %s exceeds %d bytes", imageURL, d.maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// SanitizeCaption collapses whitespace, drops refusals and caps the length.
func SanitizeCaption(text string) string {
	t := strings.Join(strings.Fields(text), " ")
	t = strings.Trim(t, `"'`)
	if t == "" {
		return ""
	}
	low := strings.ToLower(t)
	for _, snippet := range refusalSnippets {
		if strings.Contains(low, snippet) {
			return ""
		}
	}
	if len([]rune(t)) > maxCaptionChars {
		t = helper.TruncateWords(t, maxCaptionChars) + "..."
	}
	return t
}
