package worker

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// SyntheticGenerator renders a deterministic striped PNG. It needs no
// credentials and is used for local runs and as a fallback.
type SyntheticGenerator struct {
	Width  int
	Height int
}

func (g SyntheticGenerator) Generate(ctx context.Context, prompt, jobID string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := g.Width, g.Height
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	seed := seedHex(jobID, prompt)
	data, err := renderStripes(width, height, seed)
	if err != nil {
		return nil, err
	}
	return &Image{Data: data, Format: "image/png", Width: width, Height: height}, nil
}

func renderStripes(width, height int, seed string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	stripe := max(16, height/12)
	for y := 0; y < height; y += stripe * 2 {
		draw.Draw(img, image.Rect(0, y, width, min(height, y+stripe)), &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	diagonal := colorFromSeed(seed, 2)
	for x := 0; x < max(width, height); x += max(16, width/32) {
		for y := 0; y < height && x+y < width; y++ {
			img.Set(x+y, y, diagonal)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func colorFromSeed(seed string, shift int) color.RGBA {
	raw, err := hex.DecodeString(seed)
	if err != nil || len(raw) < 3 {
		return color.RGBA{A: 255}
	}
	i := (shift * 3) % (len(raw) - 2)
	return color.RGBA{R: raw[i], G: raw[i+1], B: raw[i+2], A: 255}
}

func seedHex(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))[:18]
}

// seedFor derives a positive 31-bit seed for remote generators.
func seedFor(parts ...string) int {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'|'})
	}
	n := int(binary.BigEndian.Uint32(h.Sum(nil)[:4]) % 2147483647)
	if n == 0 {
		n = 1
	}
	return n
}

var _ Generator = SyntheticGenerator{}
