package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

var (
	segmentSplitRe = regexp.MustCompile(`(?i)\s*(?:,|;|\band\b|\bplus\b)\s*`)
	dosageRe       = regexp.MustCompile(`(?i)\b\d+\s*(?:mg|mcg|ml)\b`)
	quantityRe     = regexp.MustCompile(`\b\d+\b`)
	nonLetterRe    = regexp.MustCompile(`[^a-z ]`)
)

// fillerWords are tokens that carry no medicine name information.
var fillerWords = map[string]bool{
	"i": true, "me": true, "my": true, "we": true, "please": true,
	"need": true, "needs": true, "want": true, "wants": true, "would": true,
	"like": true, "get": true, "buy": true, "order": true, "send": true,
	"give": true, "some": true, "a": true, "an": true, "the": true,
	"of": true, "for": true, "to": true, "x": true,
	"tablet": true, "tablets": true, "pill": true, "pills": true,
	"capsule": true, "capsules": true, "box": true, "boxes": true,
	"pack": true, "packs": true, "packet": true, "packets": true,
	"bottle": true, "bottles": true, "unit": true, "units": true,
	"dose": true, "doses": true, "strip": true, "strips": true,
}

// RulesExtractor parses messages with a fixed grammar: the message splits
// into segments on commas and conjunctions, and each segment yields at most
// one item. The dosage is the first unit token (e.g. "500mg"), the quantity
// the first bare integer (default 1), and the name whatever words remain
// after filler is dropped.
type RulesExtractor struct{}

// NewRulesExtractor creates a deterministic grammar-based extractor.
func NewRulesExtractor() *RulesExtractor {
	return &RulesExtractor{}
}

// Extract implements Extractor.
func (e *RulesExtractor) Extract(_ context.Context, message string) ([]model.RequestedItem, []string, error) {
	var (
		items     []model.RequestedItem
		reasoning []string
	)

	for _, segment := range segmentSplitRe.Split(message, -1) {
		item, ok := parseSegment(segment)
		if !ok {
			continue
		}
		items = append(items, item)
		reasoning = append(reasoning, fmt.Sprintf("parsed %q as name=%q dosage=%q quantity=%d",
			strings.TrimSpace(segment), item.Name, item.Dosage, item.Quantity))
	}

	if len(items) == 0 {
		reasoning = append(reasoning, "no items recognized in message")
	}
	return items, reasoning, nil
}

func parseSegment(segment string) (model.RequestedItem, bool) {
	dosage := strings.TrimSpace(dosageRe.FindString(segment))
	withoutDosage := dosageRe.ReplaceAllString(segment, " ")

	quantity := 1
	if q := quantityRe.FindString(withoutDosage); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v > 0 {
			quantity = v
		}
	}

	cleaned := nonLetterRe.ReplaceAllString(strings.ToLower(withoutDosage), " ")
	var nameWords []string
	for _, w := range strings.Fields(cleaned) {
		if !fillerWords[w] {
			nameWords = append(nameWords, w)
		}
	}
	if len(nameWords) == 0 {
		return model.RequestedItem{}, false
	}

	return model.RequestedItem{
		Name:     strings.Join(nameWords, " "),
		Dosage:   strings.ToLower(strings.ReplaceAll(dosage, " ", "")),
		Quantity: quantity,
	}, true
}
