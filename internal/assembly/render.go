package assembly

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"TopicNewsletter/internal/domain"
)

const (
	maxFindings    = 5
	maxTrends      = 3
	maxTopArticles = 3
)

//go:embed templates/newsletter.html.tmpl
var pageTemplate string

var (
	page = template.Must(template.New("newsletter").Parse(pageTemplate))

	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func htmlPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowURLSchemes("http", "https", "mailto")
		p.RequireParseableURLs(true)
		p.AddTargetBlankToFullyQualifiedLinks(true)
		policy = p
	})
	return policy
}

// RenderMarkdown writes the report: quick stats, executive summary, then one
// section per topic.
func RenderMarkdown(nl *domain.Newsletter) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s Newsletter\n## %s\n\n", nl.MainTopic, nl.GeneratedAt.Format("January 2006"))
	if nl.CoverImage != "" {
		fmt.Fprintf(&b, "![Cover](%s)\n\n", nl.CoverImage)
	}

	b.WriteString("## Quick Stats\n")
	fmt.Fprintf(&b, "- **Articles Analyzed**: %d\n", nl.Stats.TotalArticles)
	fmt.Fprintf(&b, "- **Topics Covered**: %d\n", len(nl.Sections))
	fmt.Fprintf(&b, "- **Average Quality**: %.0f%%\n\n", nl.Stats.AverageQuality*100)

	if nl.ExecutiveSummary != "" {
		fmt.Fprintf(&b, "## Executive Summary\n%s\n\n", nl.ExecutiveSummary)
	}

	b.WriteString("## Topics Covered\n\n")
	for i, s := range nl.Sections {
		fmt.Fprintf(&b, "### %d. %s (Quality: %.0f%%)\n\n%s\n\n", i+1, s.TopicName, s.QualityScore*100, s.Overview)

		if len(s.KeyFindings) > 0 {
			b.WriteString("**Key Findings:**\n")
			for _, f := range head(s.KeyFindings, maxFindings) {
				fmt.Fprintf(&b, "- %s\n", f)
			}
		}
		if len(s.NotableTrends) > 0 {
			b.WriteString("\n**Notable Trends:**\n")
			for _, t := range head(s.NotableTrends, maxTrends) {
				fmt.Fprintf(&b, "- %s\n", t)
			}
		}
		if len(s.TopArticles) > 0 {
			b.WriteString("\n**Top Articles:**\n")
			for j, a := range s.TopArticles {
				if j == maxTopArticles {
					break
				}
				fmt.Fprintf(&b, "%d. [%s](%s)", j+1, a.Title, a.URL)
				if a.Source != "" {
					fmt.Fprintf(&b, " (%s)", a.Source)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n---\n\n")
	}

	if len(nl.Glossary) > 0 {
		b.WriteString("## Glossary\n\n")
		for _, g := range nl.Glossary {
			fmt.Fprintf(&b, "- **%s**: %s\n", g.Term, g.Definition)
		}
		b.WriteString("\n")
	}

	if nl.KnowledgeGraph != nil {
		fmt.Fprintf(&b, "_Knowledge graph: %d entities, %d relationships._\n\n",
			nl.KnowledgeGraph.Entities, nl.KnowledgeGraph.Relationships)
	}

	fmt.Fprintf(&b, "*Generated: %s*\n", nl.GeneratedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

type pageData struct {
	Subject   string
	Preheader string
	Body      template.HTML
}

// RenderHTML converts the Markdown report to a standalone HTML page. The
// converted body is sanitised before it is embedded.
func RenderHTML(nl *domain.Newsletter) (string, error) {
	src := nl.Markdown
	if src == "" {
		src = RenderMarkdown(nl)
	}

	var body bytes.Buffer
	if err := markdown.Convert([]byte(src), &body); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	clean := htmlPolicy().SanitizeBytes(body.Bytes())

	var out bytes.Buffer
	err := page.Execute(&out, pageData{
		Subject:   nl.Subject,
		Preheader: nl.Preheader,
		Body:      template.HTML(clean),
	})
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out.String(), nil
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
