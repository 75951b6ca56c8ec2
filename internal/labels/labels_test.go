package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptionsKeepsOrder(t *testing.T) {
	got := Descriptions([]Label{{Description: "Wave", Score: 0.9}, {Description: "Surfing", Score: 0.95}})
	assert.Equal(t, []string{"Wave", "Surfing"}, got)
	assert.Empty(t, Descriptions(nil))
}
