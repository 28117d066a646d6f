package domain

import "time"

// Newsletter is the assembled artifact handed to delivery channels.
type Newsletter struct {
	RunID            string         `json:"run_id"`
	MainTopic        string         `json:"main_topic"`
	Subject          string         `json:"subject"`
	Preheader        string         `json:"preheader"`
	ExecutiveSummary string         `json:"executive_summary"`
	Sections         []TopicSummary `json:"sections"`
	Stats            Metrics        `json:"stats"`
	GeneratedAt      time.Time      `json:"generated_at"`
	CoverImage       string         `json:"cover_image,omitempty"`
	KnowledgeGraph   *GraphStats    `json:"knowledge_graph,omitempty"`
	Glossary         []GlossaryTerm `json:"glossary,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	Markdown         string         `json:"-"`
	HTML             string         `json:"-"`
	Artifacts        Artifacts      `json:"artifacts"`
}

// Artifacts lists the files written for a newsletter.
type Artifacts struct {
	MarkdownPath string `json:"markdown_path,omitempty"`
	HTMLPath     string `json:"html_path,omitempty"`
	JSONPath     string `json:"json_path,omitempty"`
}

// GraphStats summarises the knowledge graph built from a newsletter.
type GraphStats struct {
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	Path          string `json:"path,omitempty"`
}

// GlossaryTerm is one generated glossary definition.
type GlossaryTerm struct {
	Term         string   `json:"term"`
	EntityType   string   `json:"entity_type,omitempty"`
	Definition   string   `json:"definition"`
	RelatedTerms []string `json:"related_terms,omitempty"`
}
