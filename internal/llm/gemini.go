// Package llm wraps the Gemini API for text generation and embeddings.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/virtual-ta/ta-backend/internal/logger"
)

// maxEmbedBatch is the per-request limit of the batch embedding endpoint.
const maxEmbedBatch = 100

var ErrEmptyResponse = errors.New("model returned an empty response")

type Options struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
}

type Gemini struct {
	client *genai.Client
	opts   Options
	log    *logger.Logger
}

func NewGemini(ctx context.Context, opts Options, log *logger.Logger) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Gemini{client: client, opts: opts, log: log}, nil
}

func (g *Gemini) Close() {
	if g.client == nil {
		return
	}
	if err := g.client.Close(); err != nil {
		g.log.Warn("Error closing GenAI client", "error", err)
	} else {
		g.log.Info("GenAI client closed")
	}
}

// EmbeddingModel names the model used for embeddings; it is recorded in each index.
func (g *Gemini) EmbeddingModel() string { return g.opts.EmbeddingModel }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.opts.EmbeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds texts in order, splitting into API-sized batches.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := g.client.EmbeddingModel(g.opts.EmbeddingModel)
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embedding request failed: %w", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), end-start)
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
		g.log.Debug("Embedded batch", "from", start, "to", end, "total", len(texts))
	}
	return out, nil
}

// GenerateText runs a single-turn completion with a system instruction.
func (g *Gemini) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return g.generate(ctx, system, prompt, false)
}

// GenerateJSON is GenerateText with the response constrained to JSON.
func (g *Gemini) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	return g.generate(ctx, system, prompt, true)
}

func (g *Gemini) generate(ctx context.Context, system, prompt string, jsonOut bool) (string, error) {
	model := g.client.GenerativeModel(g.opts.ChatModel)
	if system != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	model.SetTemperature(g.opts.Temperature)
	if jsonOut {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			g.log.Debug("Gemini response part was not text", "type", fmt.Sprintf("%T", part))
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
