package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/raphaelgruber/victor/internal/models"
	"google.golang.org/genai"
)

// Default Gemini models.
const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultImagenModel = "imagen-3.0-generate-002"
)

// Gemini talks to the Gemini API: grounded chat streaming, single-shot
// completion and Imagen image generation.
type Gemini struct {
	client     *genai.Client
	model      string
	imageModel string
	search     bool
}

// GeminiOptions configures NewGemini.
type GeminiOptions struct {
	APIKey     string
	Model      string
	ImageModel string
	// Search enables Google Search grounding on streamed chat.
	Search bool
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, opts GeminiOptions) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	g := &Gemini{
		client:     client,
		model:      opts.Model,
		imageModel: opts.ImageModel,
		search:     opts.Search,
	}
	if g.model == "" {
		g.model = DefaultGeminiModel
	}
	if g.imageModel == "" {
		g.imageModel = DefaultImagenModel
	}
	return g, nil
}

// Model returns the chat model name.
func (g *Gemini) Model() string { return g.model }

// Stream yields text chunks and grounding citations as they arrive.
func (g *Gemini) Stream(ctx context.Context, req Request) iter.Seq[models.Fragment] {
	return func(yield func(models.Fragment) bool) {
		cfg := g.contentConfig(req)
		if g.search && req.Purpose == PurposeChat {
			cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, geminiContents(req), cfg) {
			if err != nil {
				yield(models.Fragment{Err: streamError(err)})
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(models.Fragment{Text: text}) {
					return
				}
			}
			if sources := groundingSources(resp); len(sources) > 0 {
				if !yield(models.Fragment{Sources: sources}) {
					return
				}
			}
		}
	}
}

// Complete generates a whole response.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	res, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(req), g.contentConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", wrapFatalError(err))
	}
	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// GenerateImage renders a single square JPEG and returns it as a data URI.
func (g *Gemini) GenerateImage(ctx context.Context, prompt string) (string, error) {
	res, err := g.client.Models.GenerateImages(ctx, g.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		OutputMIMEType:   "image/jpeg",
		AspectRatio:      "1:1",
		IncludeRAIReason: true,
	})
	if err != nil {
		return "", fmt.Errorf("generate images: %w", wrapFatalError(err))
	}
	return imageDataURI(res)
}

func imageDataURI(res *genai.GenerateImagesResponse) (string, error) {
	if res == nil || len(res.GeneratedImages) == 0 {
		return "", errors.New("no image was generated by the API")
	}
	img := res.GeneratedImages[0]
	if img.Image == nil || len(img.Image.ImageBytes) == 0 {
		if img.RAIFilteredReason != "" {
			return "", fmt.Errorf("image blocked: %s", img.RAIFilteredReason)
		}
		return "", errors.New("no image was generated by the API")
	}
	mime := img.Image.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return DataURI(mime, img.Image.ImageBytes), nil
}

// DataURI encodes raw bytes as a base64 data URI.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (g *Gemini) contentConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

func geminiContents(req Request) []*genai.Content {
	var contents []*genai.Content
	for _, t := range turns(req) {
		var role genai.Role = genai.RoleUser
		if t.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	return contents
}

// groundingSources extracts web citations that carry both a URI and a title.
func groundingSources(resp *genai.GenerateContentResponse) []models.Citation {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []models.Citation
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || chunk.Web.Title == "" {
			continue
		}
		out = append(out, models.Citation{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return out
}
