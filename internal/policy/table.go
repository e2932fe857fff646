package policy

import (
	"sort"
	"strings"

	"github.com/ppiankov/corroborate/internal/model"
)

// builtinPolicies is the default category -> policy table
var builtinPolicies = map[model.Category]model.IngestionPolicy{
	model.CategoryNews: {
		Tier: 1, FetchFullArticle: true, MinContentLength: 0,
		Notes: "Professional journalism, fetch full articles",
	},
	model.CategoryCorporateResearch: {
		Tier: 2, FetchFullArticle: false, MinContentLength: 200,
		Notes: "Corporate research, feed content already rich",
	},
	model.CategoryAnalysisNewsletter: {
		Tier: 2, FetchFullArticle: false, MinContentLength: 200,
		Notes: "Expert analysis newsletters",
	},
	model.CategoryFrontierLab: {
		Tier: 3, FetchFullArticle: false, MinContentLength: 100,
		Notes: "Frontier labs, feeds carry short snippets",
	},
	model.CategoryVendorBlog: {
		Tier: 3, FetchFullArticle: false, MinContentLength: 100,
		Notes: "Vendor blogs",
	},
	model.CategoryPolicyOrg: {
		Tier: 4, FetchFullArticle: false, MinContentLength: 200,
		Notes: "Think tanks and NGOs",
	},
	model.CategoryPressRelease: {
		Tier: 4, FetchFullArticle: false, MinContentLength: 100,
		Notes: "Government and agency press releases",
	},
	model.CategoryResearchJournal: {
		Tier: 5, FetchFullArticle: false, MinContentLength: 200,
		Notes: "Academic journals, abstracts only",
	},
	model.CategoryCommunityBlog: {
		Tier: 5, FetchFullArticle: true, MinContentLength: 0,
		Notes: "Community blogs, feeds often empty",
	},
	model.CategoryUnknown: {
		Tier: 5, FetchFullArticle: false, MinContentLength: 200,
		Notes: "Unrecognized category, lowest priority",
	},
}

// Table maps source categories to ingestion policies. It is immutable after
// construction and safe for concurrent reads.
type Table struct {
	policies map[model.Category]model.IngestionPolicy
}

// NewTable builds a table from the built-in policies plus overrides. Override
// keys are normalized to lower case; a tier below 1 is raised to 1 and a
// negative minimum length is treated as 0.
func NewTable(overrides map[string]model.IngestionPolicy) *Table {
	policies := make(map[model.Category]model.IngestionPolicy, len(builtinPolicies)+len(overrides))
	for category, p := range builtinPolicies {
		policies[category] = p
	}
	for name, p := range overrides {
		if p.Tier < 1 {
			p.Tier = 1
		}
		if p.MinContentLength < 0 {
			p.MinContentLength = 0
		}
		policies[normalizeCategory(name)] = p
	}
	return &Table{policies: policies}
}

// DefaultTable returns the built-in table
func DefaultTable() *Table {
	return NewTable(nil)
}

// Resolve returns the policy for a category, or the unknown fallback
func (t *Table) Resolve(category model.Category) model.IngestionPolicy {
	if p, ok := t.policies[normalizeCategory(string(category))]; ok {
		return p
	}
	return t.policies[model.CategoryUnknown]
}

// Known reports whether the category has its own policy
func (t *Table) Known(category model.Category) bool {
	_, ok := t.policies[normalizeCategory(string(category))]
	return ok
}

// Categories returns all categories ordered by tier, then name
func (t *Table) Categories() []model.Category {
	categories := make([]model.Category, 0, len(t.policies))
	for c := range t.policies {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		ti, tj := t.policies[categories[i]].Tier, t.policies[categories[j]].Tier
		if ti != tj {
			return ti < tj
		}
		return categories[i] < categories[j]
	})
	return categories
}

func normalizeCategory(name string) model.Category {
	return model.Category(strings.ToLower(strings.TrimSpace(name)))
}
