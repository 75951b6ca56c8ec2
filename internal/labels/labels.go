package labels

import "context"

// Label is one concept detected in an image with the service's confidence for it.
type Label struct {
	Description string  `json:"description"`
	Score       float32 `json:"score"`
}

// Detector exposes the subset of label detection functionality used by the analysis flow.
type Detector interface {
	DetectLabels(ctx context.Context, image []byte) ([]Label, error)
}

// Descriptions returns the label descriptions in their original order.
func Descriptions(ls []Label) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Description)
	}
	return out
}
