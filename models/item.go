// Package models defines data structures for the crawler.
package models

import "time"

// Columns is the fixed column order of tabular output.
var Columns = []string{"Title", "Price", "Rating", "Availability", "Link"}

// Item is one catalogue entry. Every field is independently optional.
type Item struct {
	Title        Optional[string] `json:"Title"`
	Price        Optional[string] `json:"Price"`
	Rating       Optional[int]    `json:"Rating"`
	Availability Optional[string] `json:"Availability"`
	Link         Optional[string] `json:"Link"`
}

// Row renders the item in Columns order.
func (i *Item) Row() []string {
	return []string{
		i.Title.Display(),
		i.Price.Display(),
		i.Rating.Display(),
		i.Availability.Display(),
		i.Link.Display(),
	}
}

// MissingFields lists absent fields in Columns order.
func (i *Item) MissingFields() []string {
	present := []bool{
		i.Title.Valid(),
		i.Price.Valid(),
		i.Rating.Valid(),
		i.Availability.Valid(),
		i.Link.Valid(),
	}
	var missing []string
	for idx, ok := range present {
		if !ok {
			missing = append(missing, Columns[idx])
		}
	}
	return missing
}

// StopReason explains why a crawl reached its terminal state.
type StopReason string

const (
	StopNoNextPage    StopReason = "no_next_page"
	StopMaxPages      StopReason = "max_pages"
	StopCycleDetected StopReason = "cycle_detected"
)

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	RunID              string
	StartURL           string
	Items              []*Item
	PageCount          int
	StopReason         StopReason
	StartTime          time.Time
	EndTime            time.Time
	FieldMisses        map[string]int
	ReadinessFallbacks int
}

// Duration reports how long the crawl ran.
func (r *CrawlResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
