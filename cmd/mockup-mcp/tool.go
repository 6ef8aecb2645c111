package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fpang/aop-fashion-mockup/internal/cli"
	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/export"
	"github.com/fpang/aop-fashion-mockup/internal/garment"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

// GenerateMockupInput is the tool's argument object.
type GenerateMockupInput struct {
	PatternPath string `json:"patternPath" jsonschema:"path to the fabric pattern image"`
	PersonPath  string `json:"personPath,omitempty" jsonschema:"optional path to a photo of the person to dress"`
	Garment     string `json:"garment,omitempty" jsonschema:"one of T-shirt, Tank top, Polo Shirt, Hoodie (default T-shirt)"`
	Description string `json:"description,omitempty" jsonschema:"optional style or model description"`
	OutDir      string `json:"outDir,omitempty" jsonschema:"optional directory to also save the images to"`
}

// GenerateMockupOutput is the structured tool result.
type GenerateMockupOutput struct {
	MockupID    string `json:"mockupId"`
	Garment     string `json:"garment"`
	SubjectMode string `json:"subjectMode"`
	FlatPath    string `json:"flatPath,omitempty"`
	WornPath    string `json:"wornPath,omitempty"`
}

func generateMockupTool(st *studio.Studio) mcp.ToolHandlerFor[GenerateMockupInput, GenerateMockupOutput] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in GenerateMockupInput) (*mcp.CallToolResult, GenerateMockupOutput, error) {
		var out GenerateMockupOutput

		if in.PatternPath == "" {
			return nil, out, errors.New("patternPath is required")
		}
		g, err := garment.Parse(in.Garment)
		if err != nil {
			return nil, out, err
		}
		pattern, err := cli.LoadImage(in.PatternPath)
		if err != nil {
			return nil, out, fmt.Errorf("pattern: %w", err)
		}
		var person *dataurl.Image
		if in.PersonPath != "" {
			if person, err = cli.LoadImage(in.PersonPath); err != nil {
				return nil, out, fmt.Errorf("person: %w", err)
			}
		}

		result, err := st.Generate(ctx, studio.Input{
			Pattern:     pattern,
			Person:      person,
			Garment:     g,
			Description: in.Description,
		})
		if err != nil {
			var genErr *studio.GenerationError
			if errors.As(err, &genErr) {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: genErr.UserMessage()}},
				}, out, nil
			}
			return nil, out, err
		}

		out = GenerateMockupOutput{
			MockupID:    result.ID,
			Garment:     result.Garment.String(),
			SubjectMode: result.SubjectMode,
		}
		if in.OutDir != "" {
			if out.FlatPath, out.WornPath, err = saveImages(in.OutDir, result); err != nil {
				return nil, out, err
			}
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Flat product shot and worn editorial shot of a %s (mockup %s).", result.Garment, result.ID)},
				&mcp.ImageContent{Data: result.Flat.Data, MIMEType: result.Flat.MIMEType},
				&mcp.ImageContent{Data: result.Worn.Data, MIMEType: result.Worn.MIMEType},
			},
		}, out, nil
	}
}

func saveImages(dir string, result *studio.MockupResult) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create %s: %w", dir, err)
	}
	flatPath := filepath.Join(dir, export.FlatFilename(result.ID, result.Flat))
	wornPath := filepath.Join(dir, export.WornFilename(result.ID, result.Worn))
	if err := os.WriteFile(flatPath, result.Flat.Data, 0o644); err != nil {
		return "", "", fmt.Errorf("write flat image: %w", err)
	}
	if err := os.WriteFile(wornPath, result.Worn.Data, 0o644); err != nil {
		return "", "", fmt.Errorf("write worn image: %w", err)
	}
	return flatPath, wornPath, nil
}
