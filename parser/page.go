package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/render"
)

// Field names reported to a MissFunc.
const (
	FieldTitle        = "title"
	FieldPrice        = "price"
	FieldRating       = "rating"
	FieldAvailability = "availability"
	FieldLink         = "link"
)

// Selectors locate the parts of a catalogue page.
type Selectors struct {
	Item         string
	TitleLink    string
	Price        string
	Availability string
	Rating       string
	Next         string
}

// DefaultSelectors matches the books.toscrape.com markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Item:         "article.product_pod",
		TitleLink:    "h3 a",
		Price:        ".price_color",
		Availability: ".availability",
		Rating:       ".star-rating",
		Next:         "li.next a",
	}
}

// MissFunc observes a field that fell back to its placeholder.
type MissFunc func(field string, err error)

// Extractor pulls items and the next-page link out of a document.
type Extractor struct {
	sel    Selectors
	onMiss MissFunc
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSelectors overrides DefaultSelectors.
func WithSelectors(sel Selectors) Option {
	return func(x *Extractor) {
		x.sel = sel
	}
}

// WithMissFunc installs an observer for field misses.
func WithMissFunc(fn MissFunc) Option {
	return func(x *Extractor) {
		x.onMiss = fn
	}
}

// NewExtractor returns an Extractor using DefaultSelectors unless overridden.
func NewExtractor(opts ...Option) *Extractor {
	x := &Extractor{sel: DefaultSelectors()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Selectors returns the active selectors.
func (x *Extractor) Selectors() Selectors {
	return x.sel
}

// ExtractPage returns every item on the page in document order, plus the
// next-page URL when the page links to one. A page without item containers
// yields an empty slice.
func (x *Extractor) ExtractPage(doc render.Document) ([]*models.Item, models.Optional[string]) {
	base := doc.URL()

	containers, err := doc.Query(x.sel.Item)
	if err != nil {
		x.miss("item", err)
		containers = nil
	}

	items := make([]*models.Item, 0, len(containers))
	for _, container := range containers {
		items = append(items, x.extractItem(container, base))
	}
	return items, x.nextPage(doc, base)
}

func (x *Extractor) extractItem(el render.Element, base string) *models.Item {
	return &models.Item{
		Title:        field(x, FieldTitle, func() (string, error) { return x.title(el) }),
		Price:        field(x, FieldPrice, func() (string, error) { return x.trimmedText(el, x.sel.Price) }),
		Rating:       x.rating(el),
		Availability: field(x, FieldAvailability, func() (string, error) { return x.trimmedText(el, x.sel.Availability) }),
		Link:         field(x, FieldLink, func() (string, error) { return x.link(el, base) }),
	}
}

// field runs one extraction rule; a failure only affects that field.
func field[T any](x *Extractor, name string, rule func() (T, error)) models.Optional[T] {
	value, err := rule()
	if err != nil {
		x.miss(name, err)
		return models.None[T]()
	}
	return models.Some(value)
}

func (x *Extractor) title(el render.Element) (string, error) {
	a, err := render.First(el, x.sel.TitleLink)
	if err != nil {
		return "", err
	}
	return a.Attr("title")
}

func (x *Extractor) trimmedText(el render.Element, selector string) (string, error) {
	target, err := render.First(el, selector)
	if err != nil {
		return "", err
	}
	text, err := target.Text()
	if err != nil {
		return "", err
	}
	return NormalizeText(text), nil
}

func (x *Extractor) link(el render.Element, base string) (string, error) {
	a, err := render.First(el, x.sel.TitleLink)
	if err != nil {
		return "", err
	}
	href, err := a.Attr("href")
	if err != nil {
		return "", err
	}
	return ResolveLink(base, href)
}

func (x *Extractor) rating(el render.Element) models.Optional[int] {
	indicator, err := render.First(el, x.sel.Rating)
	if err != nil {
		x.miss(FieldRating, err)
		return models.None[int]()
	}
	class, err := indicator.Attr("class")
	if err != nil {
		x.miss(FieldRating, err)
		return models.None[int]()
	}
	rating := DecodeRating(class)
	if !rating.Valid() {
		x.miss(FieldRating, fmt.Errorf("no rating word in class %q", class))
	}
	return rating
}

func (x *Extractor) nextPage(doc render.Document, base string) models.Optional[string] {
	a, err := render.First(doc, x.sel.Next)
	if err != nil {
		return models.None[string]()
	}
	href, err := a.Attr("href")
	if err != nil || strings.TrimSpace(href) == "" {
		return models.None[string]()
	}
	next, err := ResolveLink(base, href)
	if err != nil {
		x.miss("next", err)
		return models.None[string]()
	}
	return models.Some(next)
}

func (x *Extractor) miss(field string, err error) {
	if x.onMiss != nil {
		x.onMiss(field, err)
	}
}
