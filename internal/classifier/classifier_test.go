package classifier

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/activity-check/internal/labels"
)

func toLabels(descriptions ...string) []labels.Label {
	out := make([]labels.Label, 0, len(descriptions))
	for i, d := range descriptions {
		out = append(out, labels.Label{Description: d, Score: 0.5 + float32(i)/100})
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		labels   []labels.Label
		expected Result
	}{
		{"no labels", nil, Result{ActivityNormal, RiskNormal}},
		{"unrelated labels", toLabels("Sky", "Cloud", "Person"), Result{ActivityNormal, RiskNormal}},
		{"normal set is not consulted", toLabels("Walking", "Yoga", "Gym"), Result{ActivityNormal, RiskNormal}},
		{"surfing", toLabels("Surfing", "Water"), Result{ActivityExtreme, RiskExtreme}},
		{"skydiving", toLabels("Skydiving"), Result{ActivityExtreme, RiskExtreme}},
		{"ski equipment alone is generic extreme", toLabels("Ski Equipment", "Snow"), Result{ActivityExtreme, RiskExtreme}},
		{"winter sports alone is generic extreme", toLabels("Winter sports"), Result{ActivityExtreme, RiskExtreme}},
		{"ski", toLabels("Ski"), Result{ActivitySkiSnowboard, RiskSkiSnowboard}},
		{"snowboarding", toLabels("Snowboarding", "Snow"), Result{ActivitySkiSnowboard, RiskSkiSnowboard}},
		{"ski takes precedence over skydiving", []labels.Label{
			{Description: "Ski", Score: 0.8},
			{Description: "Skydiving", Score: 0.7},
		}, Result{ActivitySkiSnowboard, RiskSkiSnowboard}},
		{"case sensitive", toLabels("surfing", "ski", "SNOWBOARDING"), Result{ActivityNormal, RiskNormal}},
		{"mixed normal and extreme", toLabels("Running", "Motocross"), Result{ActivityExtreme, RiskExtreme}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.labels))
		})
	}
}

func TestEveryExtremeLabelIsDetected(t *testing.T) {
	for description := range ExtremeSports {
		got := ClassifyDescriptions([]string{description, "Outdoor"})
		if description == "Ski" || description == "Snowboarding" {
			assert.Equal(t, RiskSkiSnowboard, got.Risk, description)
			continue
		}
		assert.Equal(t, Result{ActivityExtreme, RiskExtreme}, got, description)
	}
}

func TestClassifyIgnoresOrderAndScore(t *testing.T) {
	sets := [][]string{
		{"Person", "Sky", "Surfing", "Wave"},
		{"Ski", "Snow", "Skydiving", "Mountain"},
		{"Walking", "Street", "Tree"},
	}
	rng := rand.New(rand.NewSource(42))

	for _, set := range sets {
		base := Classify(toLabels(set...))
		for i := 0; i < 20; i++ {
			shuffled := append([]string(nil), set...)
			rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

			ls := toLabels(shuffled...)
			for j := range ls {
				ls[j].Score = rng.Float32()
			}
			assert.Equal(t, base, Classify(ls), "set %v shuffled to %v", set, shuffled)
		}
	}
}

func TestClassifyDuplicatesDoNotMatter(t *testing.T) {
	assert.Equal(t,
		ClassifyDescriptions([]string{"Surfing"}),
		ClassifyDescriptions([]string{"Surfing", "Surfing", "Surfing"}),
	)
}
