package fusion

// rest.go is a ContentGenerator that talks to the Gemini REST API directly.
// It is used when the process should not pull in the SDK's transport (the
// Lambda build can choose either) and it gives tests an httptest seam.

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// geminiBaseURL is the Gemini REST API base URL.
const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// RESTClient calls generateContent over plain HTTP.
type RESTClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a REST client. A zero httpClient gets a client
// without a timeout; callers bound requests through the context.
func NewRESTClient(apiKey string, httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RESTClient{
		apiKey:     apiKey,
		baseURL:    geminiBaseURL,
		httpClient: httpClient,
	}
}

// WithBaseURL points the client at a different endpoint (proxies, tests).
func (c *RESTClient) WithBaseURL(baseURL string) *RESTClient {
	c.baseURL = baseURL
	return c
}

// --- REST API request/response types ---

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobData `json:"inlineData,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiBlobData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	Error      *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GenerateContent implements ContentGenerator.
func (c *RESTClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	startTime := time.Now()

	req := geminiRequest{}
	for _, content := range contents {
		if content == nil {
			continue
		}
		gc := geminiContent{Role: content.Role}
		for _, part := range content.Parts {
			switch {
			case part == nil:
			case part.InlineData != nil:
				gc.Parts = append(gc.Parts, geminiPart{
					InlineData: &geminiBlobData{
						MIMEType: part.InlineData.MIMEType,
						Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
					},
				})
			case part.Text != "":
				gc.Parts = append(gc.Parts, geminiPart{Text: part.Text})
			}
		}
		req.Contents = append(req.Contents, gc)
	}
	if config != nil {
		req.GenerationConfig = &geminiGenerationConfig{
			ResponseModalities: config.ResponseModalities,
		}
		if config.ImageConfig != nil && config.ImageConfig.AspectRatio != "" {
			req.GenerationConfig.ImageConfig = &geminiImageConfig{AspectRatio: config.ImageConfig.AspectRatio}
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncateString(string(respBody), 500)).
			Msg("Gemini generateContent returned error")
		apiErr := genai.APIError{Code: resp.StatusCode, Message: truncateString(string(respBody), 200)}
		var parsed geminiResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != nil {
			apiErr.Message = parsed.Error.Message
			apiErr.Status = parsed.Error.Status
		}
		return nil, &apiErr
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if geminiResp.Error != nil {
		return nil, &genai.APIError{Code: geminiResp.Error.Code, Message: geminiResp.Error.Message, Status: geminiResp.Error.Status}
	}

	out := &genai.GenerateContentResponse{}
	for _, candidate := range geminiResp.Candidates {
		content := &genai.Content{Role: candidate.Content.Role}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode image data: %w", err)
				}
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: part.InlineData.MIMEType, Data: decoded},
				})
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
		}
		out.Candidates = append(out.Candidates, &genai.Candidate{Content: content})
	}

	log.Debug().
		Str("model", model).
		Int("candidates", len(out.Candidates)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini REST generateContent complete")

	return out, nil
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
