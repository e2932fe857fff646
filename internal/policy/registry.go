package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/corroborate/internal/model"
)

// Registry is the ordered catalog of sources. Registration order is the
// order entries are handed to the merge engine, which keeps exact-length
// tie-breaks reproducible.
type Registry struct {
	sources []model.SourceDescriptor
	byName  map[string]int
	table   *Table
}

// NewRegistry validates the descriptors and builds a registry. Sources
// without a category are classified by feed host when a classifier is given.
func NewRegistry(sources []model.SourceDescriptor, table *Table, classifier *Classifier) (*Registry, error) {
	if table == nil {
		table = DefaultTable()
	}

	r := &Registry{
		sources: make([]model.SourceDescriptor, 0, len(sources)),
		byName:  make(map[string]int, len(sources)),
		table:   table,
	}

	for _, src := range sources {
		src.Name = strings.TrimSpace(src.Name)
		src.URL = strings.TrimSpace(src.URL)
		if src.Name == "" {
			return nil, fmt.Errorf("source with url %q has no name", src.URL)
		}
		if src.URL == "" {
			return nil, fmt.Errorf("source %q has no url", src.Name)
		}
		if _, dup := r.byName[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source %q", src.Name)
		}

		src.Category = normalizeCategory(string(src.Category))
		if src.Category == "" {
			src.Category = model.CategoryUnknown
			if classifier != nil {
				src.Category = classifier.Classify(src.URL)
			}
		}

		r.byName[src.Name] = len(r.sources)
		r.sources = append(r.sources, src)
	}

	return r, nil
}

// feedEntry is one publisher block in the feeds file
type feedEntry struct {
	URL  string `yaml:"url"`
	Type string `yaml:"type"`
}

// LoadRegistry reads a feeds file of the form
//
//	rss_feeds:
//	  Publisher Name:
//	    url: https://example.com/feed.xml
//	    type: news
//
// and keeps publishers in document order.
func LoadRegistry(path string, table *Table, classifier *Classifier) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	sources, err := ParseFeeds(data)
	if err != nil {
		return nil, fmt.Errorf("parse feeds file %s: %w", path, err)
	}

	return NewRegistry(sources, table, classifier)
}

// ParseFeeds decodes feeds YAML into descriptors in document order
func ParseFeeds(data []byte) ([]model.SourceDescriptor, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping at document root")
	}

	var feeds *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "rss_feeds" {
			feeds = root.Content[i+1]
			break
		}
	}
	if feeds == nil {
		return nil, fmt.Errorf("missing rss_feeds section")
	}
	if feeds.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("rss_feeds must be a mapping of publisher to feed")
	}

	sources := make([]model.SourceDescriptor, 0, len(feeds.Content)/2)
	for i := 0; i+1 < len(feeds.Content); i += 2 {
		name := feeds.Content[i].Value

		var entry feedEntry
		if err := feeds.Content[i+1].Decode(&entry); err != nil {
			return nil, fmt.Errorf("publisher %q (line %d): %w", name, feeds.Content[i].Line, err)
		}

		sources = append(sources, model.SourceDescriptor{
			Name:     name,
			URL:      entry.URL,
			Category: model.Category(entry.Type),
		})
	}

	return sources, nil
}

// Sources returns the descriptors in registration order
func (r *Registry) Sources() []model.SourceDescriptor {
	out := make([]model.SourceDescriptor, len(r.sources))
	copy(out, r.sources)
	return out
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	return len(r.sources)
}

// Lookup finds a source by publisher name
func (r *Registry) Lookup(name string) (model.SourceDescriptor, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return model.SourceDescriptor{}, false
	}
	return r.sources[idx], true
}

// ResolvePolicy returns the ingestion policy for a category
func (r *Registry) ResolvePolicy(category model.Category) model.IngestionPolicy {
	return r.table.Resolve(category)
}

// Table returns the policy table behind the registry
func (r *Registry) Table() *Table {
	return r.table
}
