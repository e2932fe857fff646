package policy

import (
	"net/url"
	"strings"

	"github.com/ppiankov/corroborate/internal/model"
)

// Classifier assigns a category to sources that do not declare one, from
// exact host and host-suffix rules
type Classifier struct {
	hosts    map[string]model.Category
	suffixes map[string]model.Category
}

// NewClassifier builds a classifier from configuration
func NewClassifier(cfg model.ClassifierConfig) *Classifier {
	c := &Classifier{
		hosts:    make(map[string]model.Category, len(cfg.HostCategories)),
		suffixes: make(map[string]model.Category, len(cfg.SuffixCategories)),
	}
	for host, category := range cfg.HostCategories {
		c.hosts[strings.ToLower(host)] = normalizeCategory(category)
	}
	for suffix, category := range cfg.SuffixCategories {
		suffix = strings.ToLower(suffix)
		if !strings.HasPrefix(suffix, ".") {
			suffix = "." + suffix
		}
		c.suffixes[suffix] = normalizeCategory(category)
	}
	return c
}

// Classify returns the category for a feed URL
func (c *Classifier) Classify(rawURL string) model.Category {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.CategoryUnknown
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return model.CategoryUnknown
	}
	host = strings.TrimPrefix(host, "www.")

	if category, ok := c.hosts[host]; ok {
		return category
	}

	// Most specific parent domain wins (feeds.blog.example.com prefers
	// blog.example.com over example.com)
	best := ""
	for candidate := range c.hosts {
		if strings.HasSuffix(host, "."+candidate) && len(candidate) > len(best) {
			best = candidate
		}
	}
	if best != "" {
		return c.hosts[best]
	}

	// Longest matching suffix wins so ".gov.uk" beats ".uk"; a bare host
	// equal to the suffix ("gov.uk") matches too
	best = ""
	for suffix := range c.suffixes {
		if matchesSuffix(host, suffix) && len(suffix) > len(best) {
			best = suffix
		}
	}
	if best != "" {
		return c.suffixes[best]
	}

	return model.CategoryUnknown
}

func matchesSuffix(host, suffix string) bool {
	return strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".")
}
