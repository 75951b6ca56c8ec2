// Package classifier maps detected image labels to a coarse activity risk.
//
// Classification depends only on the set of label descriptions: scores and
// ordering are ignored, and matching is exact and case-sensitive.
package classifier

import "github.com/example/activity-check/internal/labels"

const (
	ActivitySkiSnowboard = "Extreme sport detected: Ski/Snowboarding"
	ActivityExtreme      = "Extreme sport detected"
	ActivityNormal       = "Normal activity"

	RiskSkiSnowboard = 7
	RiskExtreme      = 9
	RiskNormal       = 2
)

// ExtremeSports lists descriptions that mark an image as showing an extreme activity.
var ExtremeSports = map[string]struct{}{
	"Skydiving":      {},
	"Bungee jumping": {},
	"Rock climbing":  {},
	"Motocross":      {},
	"Surfing":        {},
	"Snowboarding":   {},
	"Skateboarding":  {},
	"Ski":            {},
	"Ski Equipment":  {},
	"Winter sports":  {},
}

// NormalActivities is kept for reference only. Classify does not consult it:
// anything outside ExtremeSports is reported as normal activity.
var NormalActivities = map[string]struct{}{
	"Walking":  {},
	"Running":  {},
	"Cycling":  {},
	"Swimming": {},
	"Gym":      {},
	"Yoga":     {},
}

// Result is the activity message and risk level for a set of labels.
type Result struct {
	Activity string `json:"detected_activity"`
	Risk     int    `json:"risk_level"`
}

// Classify applies the activity rule to the given labels.
func Classify(ls []labels.Label) Result {
	return ClassifyDescriptions(labels.Descriptions(ls))
}

// ClassifyDescriptions applies the activity rule to raw label descriptions.
func ClassifyDescriptions(descriptions []string) Result {
	present := make(map[string]struct{}, len(descriptions))
	extreme := false
	for _, d := range descriptions {
		present[d] = struct{}{}
		if _, ok := ExtremeSports[d]; ok {
			extreme = true
		}
	}

	if !extreme {
		return Result{Activity: ActivityNormal, Risk: RiskNormal}
	}

	_, ski := present["Ski"]
	_, snowboard := present["Snowboarding"]
	if ski || snowboard {
		return Result{Activity: ActivitySkiSnowboard, Risk: RiskSkiSnowboard}
	}
	return Result{Activity: ActivityExtreme, Risk: RiskExtreme}
}
