// Package parser turns a rendered catalogue page into item records.
package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

var ratingWords = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// DecodeRating scans a class attribute such as "star-rating Three" and
// returns the value of the first cardinal word it finds.
func DecodeRating(classAttr string) models.Optional[int] {
	for _, token := range strings.Fields(classAttr) {
		if value, ok := ratingWords[token]; ok {
			return models.Some(value)
		}
	}
	return models.None[int]()
}

// NormalizeText trims surrounding whitespace and collapses inner runs.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ResolveLink makes href absolute against base.
func ResolveLink(base, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	if base == "" {
		if !ref.IsAbs() {
			return "", fmt.Errorf("relative href %q without base", href)
		}
		return ref.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// ErrIncompleteItem is returned by ValidateItem when any field is absent.
var ErrIncompleteItem = errors.New("item has missing fields")

// ValidateItem reports absent fields. An incomplete item is still a valid record.
func ValidateItem(item *models.Item) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	if missing := item.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteItem, strings.Join(missing, ", "))
	}
	return nil
}
