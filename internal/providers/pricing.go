package providers

import "strings"

// USD per million tokens.
type modelPrice struct {
	input  float64
	output float64
}

var priceTable = map[string]modelPrice{
	"gpt-4o-mini":      {input: 0.15, output: 0.60},
	"gpt-4o":           {input: 2.50, output: 10.00},
	"gemini-1.5-flash": {input: 0.075, output: 0.30},
	"gemini-1.5-pro":   {input: 1.25, output: 5.00},
}

// EstimateCostUSD prices usage for a model. Versioned model names
// ("gpt-4o-mini-2024-07-18") match their base entry; unknown models cost 0.
func EstimateCostUSD(model string, usage Usage) float64 {
	price, ok := lookupPrice(model)
	if !ok {
		return 0
	}
	return (float64(usage.PromptTokens)*price.input + float64(usage.CompletionTokens)*price.output) / 1_000_000
}

func lookupPrice(model string) (modelPrice, bool) {
	if p, ok := priceTable[model]; ok {
		return p, true
	}
	best := ""
	for name := range priceTable {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return modelPrice{}, false
	}
	return priceTable[best], true
}
