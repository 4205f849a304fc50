package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestSyntheticGeneratorIsDeterministicPNG(t *testing.T) {
	g := SyntheticGenerator{Width: 40, Height: 30}
	a, err := g.Generate(context.Background(), "fox", "msg_1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, _ := g.Generate(context.Background(), "fox", "msg_1")
	c, _ := g.Generate(context.Background(), "fox", "msg_2")
	if !bytes.Equal(a.Data, b.Data) {
		t.Fatalf("same inputs rendered different images")
	}
	if bytes.Equal(a.Data, c.Data) {
		t.Fatalf("different jobs rendered identical images")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(a.Data))
	if err != nil || cfg.Width != 40 || cfg.Height != 30 {
		t.Fatalf("decode = %+v, %v", cfg, err)
	}
}

func TestQwenGenerator(t *testing.T) {
	var pngBytes []byte
	{
		img, _ := SyntheticGenerator{Width: 8, Height: 8}.Generate(context.Background(), "p", "j")
		pngBytes = img.Data
	}
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/aigc/multimodal-generation/generation":
			if r.Header.Get("Authorization") != "Bearer key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			var req qwenRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input.Messages[0].Content[0].Text != "a red fox" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"output":{"choices":[{"message":{"content":[{"image":"` + srv.URL + `/img.png"}]}}]}}`))
		case "/img.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewQwenGenerator(QwenOptions{APIKey: "key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	img, err := g.Generate(context.Background(), "a red fox", "msg_1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.SourceURL != srv.URL+"/img.png" || img.Format != "image/png" || img.Width != 8 || !bytes.Equal(img.Data, pngBytes) {
		t.Fatalf("image = %+v", img)
	}
}

func TestQwenGeneratorErrors(t *testing.T) {
	if _, err := NewQwenGenerator(QwenOptions{}).Generate(context.Background(), "fox", "j"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"DataInspectionFailed","message":"inappropriate content"}`))
	}))
	defer srv.Close()
	_, err := NewQwenGenerator(QwenOptions{APIKey: "key", BaseURL: srv.URL}).Generate(context.Background(), "fox", "j")
	if err == nil || err.Error() != "qwen: inappropriate content (DataInspectionFailed)" {
		t.Fatalf("err = %v", err)
	}
	if shouldFallback(err) {
		t.Fatalf("content rejection must not fall back to a synthetic image")
	}
}

func TestFallbackGenerator(t *testing.T) {
	g := &FallbackGenerator{Primary: NewQwenGenerator(QwenOptions{}), Fallback: SyntheticGenerator{Width: 4, Height: 4}, Logger: zerolog.Nop()}
	img, err := g.Generate(context.Background(), "fox", "j")
	if err != nil || img.Format != "image/png" {
		t.Fatalf("Generate = %+v, %v", img, err)
	}

	g = &FallbackGenerator{Primary: failingGenerator{err: errors.New("nsfw")}, Fallback: SyntheticGenerator{}, Logger: zerolog.Nop()}
	if _, err := g.Generate(context.Background(), "fox", "j"); err == nil {
		t.Fatalf("expected primary error to surface")
	}
}
