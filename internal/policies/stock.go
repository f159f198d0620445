package policies

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	firstInteger = regexp.MustCompile(`\d+`)

	outOfStockPhrases = []string{
		"out of stock",
		"currently unavailable",
		"unavailable",
		"sold out",
	}
)

// ParseStockQuantity reads a supplier stock descriptor. The first integer in the text wins;
// known sold-out phrases mean zero. ok is false when the descriptor carries no quantity.
func ParseStockQuantity(descriptor string) (qty int, ok bool) {
	text := strings.ToLower(strings.TrimSpace(descriptor))
	if text == "" {
		return 0, false
	}
	if match := firstInteger.FindString(text); match != "" {
		n, err := strconv.Atoi(match)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(text, phrase) {
			return 0, true
		}
	}
	return 0, false
}
