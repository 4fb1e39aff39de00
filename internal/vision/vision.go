package vision

import "context"

// GarmentAttributes is the structured description of a garment inferred from
// its photographs.
type GarmentAttributes struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Brand       string `json:"brand"`
	Size        string `json:"size"`
	Material    string `json:"material"`
	Color       string `json:"color"`
	Condition   string `json:"condition"`
}

// Usage contains token usage and cost information for one analysis call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// AnalysisResult contains the garment attributes and usage information.
type AnalysisResult struct {
	Garment *GarmentAttributes
	Usage   Usage
}

// Analyzer can analyze garment photographs and produce listing-ready
// attributes.
type Analyzer interface {
	// AnalyzeImage analyzes a single photograph.
	AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*AnalysisResult, error)
	// AnalyzeImages analyzes multiple photographs of the same garment
	// together for better context (front, back, label shots).
	AnalyzeImages(ctx context.Context, images [][]byte) (*AnalysisResult, error)
}
