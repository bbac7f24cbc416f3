package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vnmchuo/tryon-gateway/internal/generator"
)

// tryOnPrompt instructs the model to dress the person image in the garment
// from the product image.
const tryOnPrompt = "Put the garment product image onto the model image while keeping the model image's background, pose, and lighting."

type GeminiGenerator struct {
	apiKey  string
	model   string
	baseURL string
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobPart `json:"inlineData,omitempty"`
}

type geminiBlobPart struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"` // base64-encoded by encoding/json
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func New(apiKey, model string) generator.Generator {
	return &GeminiGenerator{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
	}
}

func (g *GeminiGenerator) Generate(ctx context.Context, productImage, personImage []byte) (*generator.Result, error) {
	geminiReq := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{InlineData: &geminiBlobPart{MimeType: detectMime(productImage), Data: productImage}},
				{InlineData: &geminiBlobPart{MimeType: detectMime(personImage), Data: personImage}},
				{Text: tryOnPrompt},
			},
		}},
	}
	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, err
	}

	image, diagnostic := firstImagePart(&geminiResp)
	if image == nil {
		// Responded but no usable image: distinguishable from transport
		// faults so the classifier can treat it as a provider-side error.
		return nil, &generator.EmptyResultError{Diagnostic: diagnostic}
	}

	return &generator.Result{
		Image:      image,
		UsedTokens: geminiResp.UsageMetadata.TotalTokenCount,
	}, nil
}

// firstImagePart returns the first inline image in the response, or the
// concatenated text parts as a diagnostic when there is none.
func firstImagePart(resp *geminiResponse) ([]byte, string) {
	var texts []string
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, ""
			}
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
	}
	diagnostic := strings.Join(texts, " ")
	if diagnostic == "" {
		diagnostic = "response contained no image and no text"
	}
	return nil, diagnostic
}

func detectMime(image []byte) string {
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		return "image/png"
	}
	return mime
}
