package model

// Category is the declared kind of a source, used to choose ingestion policy
type Category string

// Built-in source categories
const (
	CategoryNews               Category = "news"
	CategoryCorporateResearch  Category = "corporate_research"
	CategoryAnalysisNewsletter Category = "analysis_newsletter"
	CategoryFrontierLab        Category = "frontier_lab"
	CategoryVendorBlog         Category = "vendor_blog"
	CategoryPolicyOrg          Category = "policy_org"
	CategoryPressRelease       Category = "press_release"
	CategoryResearchJournal    Category = "research_journal"
	CategoryCommunityBlog      Category = "community_blog"
	CategoryUnknown            Category = "unknown" // Fallback for anything unrecognized
)

// SourceDescriptor describes one feed or mailbox source
type SourceDescriptor struct {
	Name     string   `json:"name" yaml:"name"`         // Publisher name
	URL      string   `json:"url" yaml:"url"`           // Feed location
	Category Category `json:"category" yaml:"category"` // Declared category tag
}

// IngestionPolicy controls how entries from a category are ingested
type IngestionPolicy struct {
	Tier             int    `json:"tier" yaml:"tier" mapstructure:"tier"` // Lower is higher priority
	FetchFullArticle bool   `json:"fetch_full_article" yaml:"fetch_full_article" mapstructure:"fetch_full_article"`
	MinContentLength int    `json:"min_content_length" yaml:"min_content_length" mapstructure:"min_content_length"`
	Notes            string `json:"notes,omitempty" yaml:"notes,omitempty" mapstructure:"notes"`
}
