package crawler

import (
	"fmt"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
)

// visitedSet remembers recently loaded page URLs. A zero size disables it.
type visitedSet struct {
	cache *lru.Cache[string, struct{}]
}

func newVisitedSet(size int) (*visitedSet, error) {
	if size <= 0 {
		return &visitedSet{}, nil
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create visited cache: %w", err)
	}
	return &visitedSet{cache: cache}, nil
}

func (v *visitedSet) add(rawURL string) {
	if v.cache == nil || rawURL == "" {
		return
	}
	v.cache.Add(visitKey(rawURL), struct{}{})
}

func (v *visitedSet) seen(rawURL string) bool {
	if v.cache == nil {
		return false
	}
	return v.cache.Contains(visitKey(rawURL))
}

// visitKey drops the fragment, which never changes the loaded page.
func visitKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String()
}
