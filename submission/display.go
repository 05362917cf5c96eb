package submission

import (
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/maastricht-university/stressdash/clients"
)

// Tier is the local color band for a percentage. It is computed from the
// number alone and may disagree with the service's stress_level; both are
// shown as they are.
type Tier string

const (
	TierLow      Tier = "Low"
	TierModerate Tier = "Moderate"
	TierHigh     Tier = "High"
)

func TierFor(percentage float64) Tier {
	switch {
	case percentage < 30:
		return TierLow
	case percentage < 60:
		return TierModerate
	default:
		return TierHigh
	}
}

func (t Tier) Color() string {
	switch t {
	case TierLow:
		return "#8d9740"
	case TierModerate:
		return "#e4a853"
	default:
		return "#c74545"
	}
}

const (
	RecommendLow      = "You're doing well! Maintain your current stress management practices."
	RecommendModerate = "Consider taking short breaks and practicing deep breathing exercises."
	RecommendHigh     = "High stress detected. Consider speaking with a wellness professional and taking immediate breaks."
	RecommendDefault  = "Continue monitoring your stress levels regularly."
)

// Recommendation maps the service's stress_level to advice.
func Recommendation(level string) string {
	switch level {
	case "Low":
		return RecommendLow
	case "Moderate":
		return RecommendModerate
	case "High":
		return RecommendHigh
	default:
		return RecommendDefault
	}
}

// Percent formats an already-scaled percentage with one decimal, "42.0%".
func Percent(v float64) string { return fixed1(v) + "%" }

// fixed1 rounds the exact binary value of v to one decimal, sending ties away
// from zero: 42.25 gives "42.3" while 12.45 (12.4499... in binary) gives "12.4".
func fixed1(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	r := new(big.Rat).SetFloat64(math.Abs(v))
	r.Mul(r, big.NewRat(10, 1))
	q, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if rem.Lsh(rem, 1).Cmp(r.Denom()) >= 0 {
		q.Add(q, big.NewInt(1))
	}

	digits := q.String()
	if len(digits) < 2 {
		digits = "0" + digits
	}
	out := digits[:len(digits)-1] + "." + digits[len(digits)-1:]
	if v < 0 {
		out = "-" + out
	}
	return out
}

type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Panel struct {
	Modality string `json:"modality"`
	Label    string `json:"label"`
	Value    string `json:"value"`
}

// Summary is the five-part result breakdown: overall percentage with its
// tier color, headline, probability stats, per-modality panels and the
// recommendation.
type Summary struct {
	Percentage     string  `json:"percentage"`
	Tier           Tier    `json:"tier"`
	Color          string  `json:"color"`
	Headline       string  `json:"headline"`
	Stats          []Stat  `json:"stats"`
	Panels         []Panel `json:"panels"`
	Recommendation string  `json:"recommendation"`
}

func Summarize(r *clients.AnalyzeResp) Summary {
	tier := TierFor(r.Percentage)
	s := Summary{
		Percentage: Percent(r.Percentage),
		Tier:       tier,
		Color:      tier.Color(),
		Headline:   fmt.Sprintf("%s Stress - %s", r.StressLevel, r.PredictedClass),
		Stats: []Stat{
			{Label: "Confidence", Value: Percent(r.Confidence * 100)},
			{Label: "Stress Probability", Value: Percent(r.StressProbability * 100)},
			{Label: "No Stress Probability", Value: Percent(r.NoStressProbability * 100)},
		},
		Recommendation: Recommendation(r.StressLevel),
	}
	if p := r.IndividualPredictions; p != nil {
		for _, m := range []struct {
			key, label string
			v          *float64
		}{
			{"facial", "Facial", p.Facial},
			{"voice", "Voice", p.Voice},
			{"physiological", "Physiological", p.Physiological},
		} {
			if m.v != nil {
				s.Panels = append(s.Panels, Panel{Modality: m.key, Label: m.label, Value: Percent(*m.v * 100)})
			}
		}
	}
	return s
}
