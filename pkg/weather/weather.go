// Package weather rolls weather transitions from a Markov-style table
// with volatility and per-location overrides.
package weather

import (
	"math"
	"slices"
	"strings"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
	"github.com/jwebster45206/campaign-engine/pkg/random"
)

// OverrideBlend is the share of a weighted location override in the
// blended distribution.
const OverrideBlend = 0.5

// DefaultTable builds a transition table for options: staying put is
// likeliest, rain-like weather drifts between rain states and storms, and
// clear and overcast skies lean towards each other.
func DefaultTable(options []string) map[string]map[string]float64 {
	table := make(map[string]map[string]float64, len(options))
	for _, from := range options {
		table[from] = defaultRow(from, options)
	}
	return table
}

// defaultRow is the DefaultTable row for from.
func defaultRow(from string, options []string) map[string]float64 {
	weights := make([]float64, len(options))
	total := 0.0
	for i, to := range options {
		weights[i] = defaultWeight(from, to)
		total += weights[i]
	}
	row := make(map[string]float64, len(options))
	for i, to := range options {
		row[to] = round3(weights[i] / total)
	}
	return row
}

func defaultWeight(from, to string) float64 {
	if from == to {
		return 5
	}
	f, t := strings.ToLower(from), strings.ToLower(to)
	switch {
	case strings.Contains(f, "rain") && strings.Contains(t, "rain"):
		return 2
	case strings.Contains(f, "storm") && strings.Contains(t, "rain"),
		strings.Contains(f, "rain") && strings.Contains(t, "storm"):
		return 2
	case from == "Clear" && to == "Overcast":
		return 2
	case from == "Overcast" && (to == "Clear" || to == "Rain"):
		return 2
	}
	return 0.5
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Row returns the transition probabilities out of current, aligned with
// cfg.Options. Configured rows win; otherwise the default table is used.
// Unknown current weather yields a uniform row.
func Row(cfg campaign.WeatherConfig, current string) []float64 {
	row := make([]float64, len(cfg.Options))
	if len(row) == 0 {
		return row
	}

	source, ok := cfg.Transitions[current]
	if !ok && slices.Contains(cfg.Options, current) {
		source, ok = defaultRow(current, cfg.Options), true
	}
	total := 0.0
	if ok {
		for i, opt := range cfg.Options {
			if p := source[opt]; p > 0 {
				row[i] = p
				total += p
			}
		}
	}
	if total <= 0 {
		for i := range row {
			row[i] = 1
		}
		total = float64(len(row))
	}
	for i := range row {
		row[i] /= total
	}
	return row
}

// ApplyVolatility shrinks the self-transition at index self to
// self*(1-volatility) and hands the removed mass to the other options in
// proportion to their weight (evenly when they are all zero).
func ApplyVolatility(row []float64, self int, volatility float64) []float64 {
	out := append([]float64(nil), row...)
	if self < 0 || self >= len(out) || len(out) < 2 {
		return out
	}
	volatility = math.Max(0, math.Min(1, volatility))

	removed := out[self] * volatility
	if removed <= 0 {
		return out
	}
	out[self] -= removed

	others := 0.0
	for i, p := range out {
		if i != self {
			others += p
		}
	}
	for i := range out {
		if i == self {
			continue
		}
		if others > 0 {
			out[i] += removed * out[i] / others
		} else {
			out[i] += removed / float64(len(out)-1)
		}
	}
	return out
}

// Blend mixes override weights into row at OverrideBlend and renormalises.
func Blend(row []float64, options []string, weights map[string]float64) []float64 {
	out := append([]float64(nil), row...)
	total := 0.0
	for _, opt := range options {
		if w := weights[opt]; w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return out
	}
	sum := 0.0
	for i, opt := range options {
		w := math.Max(0, weights[opt]) / total
		out[i] = (1-OverrideBlend)*out[i] + OverrideBlend*w
		sum += out[i]
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

// Sample walks the cumulative distribution in option order with a single
// uniform draw.
func Sample(src random.Source, options []string, row []float64) string {
	if len(options) == 0 {
		return ""
	}
	u := src.Float64()
	acc := 0.0
	for i, p := range row {
		acc += p
		if u < acc {
			return options[i]
		}
	}
	return options[len(options)-1]
}

// Next rolls the weather following current. A fixed override pins the
// result without drawing.
func Next(cfg campaign.WeatherConfig, current string, override *campaign.WeatherOverride, src random.Source) string {
	if override != nil && override.Mode == campaign.WeatherFixed && override.Weather != "" {
		return override.Weather
	}
	if len(cfg.Options) == 0 {
		return current
	}

	row := Row(cfg, current)
	row = ApplyVolatility(row, indexOf(cfg.Options, current), cfg.Volatility)
	if override != nil && override.Mode == campaign.WeatherWeighted {
		row = Blend(row, cfg.Options, override.Weights)
	}
	return Sample(src, cfg.Options, row)
}

func indexOf(options []string, s string) int {
	for i, o := range options {
		if o == s {
			return i
		}
	}
	return -1
}
