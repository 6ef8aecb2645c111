package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/fusion"
	"github.com/fpang/aop-fashion-mockup/internal/metrics"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeGenerator struct {
	err error
}

func (f fakeGenerator) Generate(context.Context, fusion.Request) (*fusion.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fusion.Result{
		Flat: dataurl.New("image/png", []byte("flat")),
		Worn: dataurl.New("image/png", []byte("worn")),
	}, nil
}

func writePattern(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "pattern.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGenerateMockupTool(t *testing.T) {
	handler := generateMockupTool(studio.New(fakeGenerator{}))
	outDir := t.TempDir()

	res, out, err := handler(context.Background(), &mcp.CallToolRequest{}, GenerateMockupInput{
		PatternPath: writePattern(t),
		Garment:     "hoodie",
		OutDir:      outDir,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatal("IsError = true")
	}
	if len(res.Content) != 3 {
		t.Fatalf("content = %d items, want text and two images", len(res.Content))
	}
	if img, ok := res.Content[1].(*mcp.ImageContent); !ok || string(img.Data) != "flat" {
		t.Errorf("content[1] = %#v, want flat image", res.Content[1])
	}
	if out.Garment != "Hoodie" || out.SubjectMode != "without_subject" || out.MockupID == "" {
		t.Errorf("output = %+v", out)
	}
	if data, err := os.ReadFile(out.WornPath); err != nil || string(data) != "worn" {
		t.Errorf("worn file = %q, %v", data, err)
	}
}

func TestGenerateMockupTool_Errors(t *testing.T) {
	handler := generateMockupTool(studio.New(fakeGenerator{}))
	ctx := context.Background()

	if _, _, err := handler(ctx, &mcp.CallToolRequest{}, GenerateMockupInput{}); err == nil {
		t.Error("expected error without patternPath")
	}
	if _, _, err := handler(ctx, &mcp.CallToolRequest{}, GenerateMockupInput{PatternPath: writePattern(t), Garment: "Kimono"}); err == nil {
		t.Error("expected error for unknown garment")
	}
	if _, _, err := handler(ctx, &mcp.CallToolRequest{}, GenerateMockupInput{PatternPath: "/does/not/exist.png"}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGenerateMockupTool_GenerationFailure(t *testing.T) {
	handler := generateMockupTool(studio.New(fakeGenerator{err: errors.New("quota")}))

	res, _, err := handler(context.Background(), &mcp.CallToolRequest{}, GenerateMockupInput{PatternPath: writePattern(t)})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Fatal("IsError = false")
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok || text.Text != studio.FailureMessage {
		t.Errorf("content = %#v, want the fixed failure message", res.Content[0])
	}
}
