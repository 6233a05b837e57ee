// Package chunker trims long texts to what a language model accepts.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const separator = "\n\n"

// CountFunc prices each unit in tokens. It must return one count per unit.
type CountFunc func(ctx context.Context, units []string) ([]int, error)

type Budget struct {
	Tokens     int
	Characters int
}

// Split breaks text into trimmed, non-empty paragraphs.
func Split(text string) []string {
	var units []string
	for _, part := range strings.Split(text, separator) {
		part = strings.TrimSpace(part)
		if part != "" {
			units = append(units, part)
		}
	}
	return units
}

// Chunk returns the longest paragraph prefix of text that fits both limits
// of budget. Paragraphs are never reordered or split; if the first one
// does not fit, the result is empty.
func Chunk(ctx context.Context, text string, count CountFunc, budget Budget) (string, error) {
	units := Split(text)
	if len(units) == 0 {
		return "", nil
	}

	tokens, err := count(ctx, units)
	if err != nil {
		return "", fmt.Errorf("count tokens: %w", err)
	}
	if len(tokens) != len(units) {
		return "", fmt.Errorf("count tokens: got %d counts for %d units", len(tokens), len(units))
	}

	var (
		accepted   []string
		totalTok   int
		totalChars int
	)
	for i, unit := range units {
		chars := utf8.RuneCountInString(unit)
		if totalTok+tokens[i] > budget.Tokens || totalChars+chars > budget.Characters {
			break
		}
		totalTok += tokens[i]
		totalChars += chars
		accepted = append(accepted, unit)
	}

	return strings.Join(accepted, separator), nil
}
