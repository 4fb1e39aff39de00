package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.30
	geminiOutputPricePerMillion = 2.50
)

// maxImagesPerRequest bounds how many photos of one garment are sent in a
// single analysis call.
const maxImagesPerRequest = 10

var garmentPrompt = strings.TrimSpace(dedent.Dedent(`
	Analyze this photograph of a garment and identify it for selling on a secondhand clothing marketplace.

	Respond in JSON format with these fields:
	- title: A short, descriptive listing title. Include brand, garment type and size if visible.
	- description: A longer description with relevant details (2-3 sentences): fit, notable features, visible condition.
	- brand: The brand name if identifiable (empty string if unknown)
	- size: The size from the label if visible (empty string if unknown)
	- material: The primary material from the care label if visible (empty string if unknown)
	- color: The dominant color (empty string if unknown)
	- condition: One of "new", "like_new", "good", "fair", "poor" based on visible wear (empty string if unclear)

	Example response:
	{"title": "Patagonia Better Sweater fleece jacket, men's M", "description": "Classic full-zip fleece in navy. Light pilling on the cuffs, otherwise clean with no stains or tears.", "brand": "Patagonia", "size": "M", "material": "polyester", "color": "navy", "condition": "good"}

	Respond ONLY with the JSON object, no markdown or other text.
`))

var garmentMultiImagePrompt = strings.TrimSpace(dedent.Dedent(`
	Analyze these photographs showing the same garment from different angles and identify it for selling on a secondhand clothing marketplace.

	The images show the same garment - use all of them together to read labels, judge condition and spot flaws.

	Respond in JSON format with these fields:
	- title: A short, descriptive listing title. Include brand, garment type and size if visible.
	- description: A longer description with relevant details (2-3 sentences): fit, notable features, condition details visible across the images.
	- brand: The brand name if identifiable (empty string if unknown)
	- size: The size from the label if visible (empty string if unknown)
	- material: The primary material from the care label if visible (empty string if unknown)
	- color: The dominant color (empty string if unknown)
	- condition: One of "new", "like_new", "good", "fair", "poor" based on visible wear (empty string if unclear)

	Respond ONLY with the JSON object, no markdown or other text.
`))

// GeminiAnalyzer uses Google's Gemini API for garment image analysis.
type GeminiAnalyzer struct {
	client *genai.Client
}

// NewGeminiAnalyzer creates a new Gemini-based analyzer. It uses the
// GEMINI_API_KEY environment variable for authentication.
func NewGeminiAnalyzer(ctx context.Context) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client}, nil
}

// AnalyzeImage implements the Analyzer interface using Gemini. It delegates
// to AnalyzeImages with a single-element slice.
func (g *GeminiAnalyzer) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*AnalysisResult, error) {
	return g.AnalyzeImages(ctx, [][]byte{imageData})
}

// AnalyzeImages analyzes one or more photographs of the same garment.
func (g *GeminiAnalyzer) AnalyzeImages(ctx context.Context, images [][]byte) (*AnalysisResult, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images provided")
	}
	if len(images) > maxImagesPerRequest {
		images = images[:maxImagesPerRequest]
	}

	prompt := garmentPrompt
	if len(images) > 1 {
		prompt = garmentMultiImagePrompt
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}
	for _, imgData := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: imgData, MIMEType: "image/jpeg"},
		})
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	garment, err := parseGarmentAttributes(result.Text())
	if err != nil {
		return nil, err
	}

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens)
	}

	log.Info().
		Str("model", geminiModel).
		Int("imageCount", len(images)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("vision llm call")

	return &AnalysisResult{Garment: garment, Usage: usage}, nil
}

func calculateGeminiCost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * geminiInputPricePerMillion
	outputCost := float64(outputTokens) / 1_000_000 * geminiOutputPricePerMillion
	return inputCost + outputCost
}

// extractJSONObject extracts a JSON object from text that may contain
// markdown code blocks or other formatting.
func extractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response: %s", text)
	}
	return text[start : end+1], nil
}

func parseGarmentAttributes(text string) (*GarmentAttributes, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	var attrs GarmentAttributes
	if err := json.Unmarshal([]byte(jsonStr), &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w (response: %s)", err, jsonStr)
	}
	return &attrs, nil
}
