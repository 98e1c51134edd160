package llmservice

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/helper"
)

type fakeModel struct {
	replies []string
	errs    []error
	calls   int
	last    []llms.MessageContent
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	i := f.calls
	f.calls++
	f.last = messages
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testRetry() helper.RetryConfig {
	return helper.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, Retryable: helper.IsRetryableAPIError}
}

func TestClientComplete(t *testing.T) {
	model := &fakeModel{
		errs:    []error{errors.New("API returned unexpected status code: 429: slow down"), nil},
		replies: []string{"", "how_to"},
	}
	client := NewClientWithModel(model, "test-model", nil, testRetry())

	out, err := client.Complete(context.Background(), "classify", Options{})
	require.NoError(t, err)
	assert.Equal(t, "how_to", out)
	assert.Equal(t, 2, model.calls)
}

func TestClientCompleteNonRetryable(t *testing.T) {
	model := &fakeModel{errs: []error{errors.New("API returned unexpected status code: 401: bad key")}}
	client := NewClientWithModel(model, "test-model", nil, testRetry())

	_, err := client.Complete(context.Background(), "classify", Options{})
	require.Error(t, err)
	assert.Equal(t, 1, model.calls)
}

func TestNewClientAppliesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewClient(&config.LLMConfig{
		BaseURL:        srv.URL,
		Key:            "sk-test",
		Model:          "test-model",
		RequestsPerSec: 10,
		Timeout:        50 * time.Millisecond,
		MaxRetries:     1,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Complete(context.Background(), "classify", Options{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

type fakeGenerator struct {
	reply    string
	err      error
	calls    int
	messages []llms.MessageContent
}

func (f *fakeGenerator) GenerateContent(_ context.Context, messages []llms.MessageContent, _ Options) (string, error) {
	f.calls++
	f.messages = messages
	return f.reply, f.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 200, 200), []color.Color{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestVisionDescriber(t *testing.T) {
	large := pngBytes(t, 200, 120)
	small := pngBytes(t, 32, 32)
	animated := gifBytes(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/large.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(large)
		case "/small.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(small)
		case "/anim.gif":
			w.Header().Set("Content-Type", "image/gif")
			_, _ = w.Write(animated)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		path      string
		reply     string
		want      string
		wantErr   bool
		wantCalls int
	}{
		{name: "described", path: "/large.png", reply: "  Settings screen with the Save button.  ", want: "Settings screen with the Save button.", wantCalls: 1},
		{name: "refusal dropped", path: "/large.png", reply: "I'm sorry, I can't see the image.", want: "", wantCalls: 1},
		{name: "small skipped", path: "/small.png", want: "", wantCalls: 0},
		{name: "gif skipped", path: "/anim.gif", want: "", wantCalls: 0},
		{name: "missing image", path: "/missing.png", wantErr: true, wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{reply: tt.reply}
			d := NewVisionDescriber(gen, srv.Client(), 1<<20, 80)

			got, err := d.Describe(context.Background(), srv.URL+tt.path, "Open the settings menu")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.wantCalls, gen.calls)
		})
	}
}

func TestVisionDescriberSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{0xff}, 2048))
	}))
	defer srv.Close()

	d := NewVisionDescriber(&fakeGenerator{}, srv.Client(), 1024, 80)
	_, err := d.Describe(context.Background(), srv.URL+"/huge.png", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestSanitizeCaption(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := SanitizeCaption(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len([]rune(got)), maxCaptionChars+3)

	assert.Equal(t, "", SanitizeCaption("Não consigo ver a imagem"))
	assert.Equal(t, "A dashboard", SanitizeCaption("\"A   dashboard\""))
}
