package model

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing is the list price per 1M text tokens.
var defaultPricing = map[string]Pricing{
	"gpt-4o":                     {InputPerM: 2.50, OutputPerM: 10.00},
	"gpt-4o-mini":                {InputPerM: 0.15, OutputPerM: 0.60},
	"gpt-4-turbo":                {InputPerM: 10.00, OutputPerM: 30.00},
	"gpt-3.5-turbo":              {InputPerM: 0.50, OutputPerM: 1.50},
	"gemini-2.5-flash":           {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite":      {InputPerM: 0.10, OutputPerM: 0.40},
	"gemini-1.5-pro":             {InputPerM: 1.25, OutputPerM: 5.00},
	"gemini-1.5-flash":           {InputPerM: 0.075, OutputPerM: 0.30},
	"claude-3-opus-20240229":     {InputPerM: 15.00, OutputPerM: 75.00},
	"claude-3-sonnet-20240229":   {InputPerM: 3.00, OutputPerM: 15.00},
	"claude-3-5-sonnet-20240620": {InputPerM: 3.00, OutputPerM: 15.00},
	"claude-3-haiku-20240307":    {InputPerM: 0.25, OutputPerM: 1.25},
	"llama3-70b-8192":            {InputPerM: 0.59, OutputPerM: 0.79},
	"llama3-8b-8192":             {InputPerM: 0.05, OutputPerM: 0.08},
	"mixtral-8x7b-32768":         {InputPerM: 0.24, OutputPerM: 0.24},
}

// CostEnabled returns whether to compute/log cost.
func CostEnabled() bool {
	return true
}

// ResolvePricing returns the pricing for a model. Dated variants fall back to
// their base name; unknown models cost zero.
func ResolvePricing(model string) Pricing {
	model = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(model)), "models/")
	if p, ok := defaultPricing[model]; ok {
		return p
	}
	best := ""
	for name := range defaultPricing {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	return defaultPricing[best]
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}
