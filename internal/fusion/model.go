package fusion

import "os"

// Gemini image model IDs.
//
// | Model Name             | API Model ID                | Use Case                       |
// |------------------------|-----------------------------|--------------------------------|
// | Gemini 2.5 Flash Image | gemini-2.5-flash-image      | Fast image generation/editing  |
// | Gemini 3 Pro Image     | gemini-3-pro-image-preview  | Highest fidelity image editing |
const (
	// ModelGemini25FlashImage is the fast image generation/edit model.
	ModelGemini25FlashImage = "gemini-2.5-flash-image"

	// ModelGemini3ProImage is for advanced image generation/edit.
	ModelGemini3ProImage = "gemini-3-pro-image-preview"
)

// DefaultModelName is the image model used for both fusion stages.
// Can be overridden via MOCKUP_MODEL environment variable.
const DefaultModelName = ModelGemini25FlashImage

// GetModelName returns MOCKUP_MODEL if set, otherwise DefaultModelName.
func GetModelName() string {
	if env := os.Getenv("MOCKUP_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}
