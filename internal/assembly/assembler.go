// Package assembly turns a completed run into newsletter artifacts: a
// Markdown report, a sanitised HTML page and a JSON document.
package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
)

const timestampLayout = "20060102_150405"

// ErrNothingToAssemble is returned when no selected topic produced a summary.
var ErrNothingToAssemble = errors.New("no topic summaries to assemble")

// Collaborators are optional enrichers. A nil field is skipped.
type Collaborators struct {
	Cover    ports.CoverImageGenerator
	Graph    ports.KnowledgeGraphBuilder
	Glossary ports.GlossaryGenerator
}

// Config controls selection and output.
type Config struct {
	OutputDir      string
	SelectedTopics []string
}

// Assembler renders newsletters. It never mutates the run state.
type Assembler struct {
	cfg    Config
	extras Collaborators
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.Assembler = (*Assembler)(nil)

// New builds an Assembler.
func New(cfg Config, extras Collaborators, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Assembler{
		cfg:    cfg,
		extras: extras,
		logger: logger.With("component", "assembly"),
		now:    time.Now,
	}
}

// Assemble builds the newsletter from a completed run and writes its
// artifacts when an output directory is configured.
func (a *Assembler) Assemble(ctx context.Context, state *domain.WorkflowState) (*domain.Newsletter, error) {
	if state == nil || state.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("assemble: run is not completed")
	}

	sections := a.selectSections(state.TopicSummaries)
	if len(sections) == 0 {
		return nil, ErrNothingToAssemble
	}

	now := a.now()
	exec := ""
	if state.ExecutiveSummary != nil {
		exec = *state.ExecutiveSummary
	}

	nl := &domain.Newsletter{
		RunID:            state.RunID,
		MainTopic:        state.MainTopic,
		Subject:          fmt.Sprintf("%s: %s Digest", state.MainTopic, now.Format("January 2006")),
		Preheader:        preheader(exec, len(sections)),
		ExecutiveSummary: exec,
		Sections:         sections,
		Stats:            state.Metrics(now),
		GeneratedAt:      now,
	}

	a.enrich(ctx, nl)

	nl.Markdown = RenderMarkdown(nl)
	html, err := RenderHTML(nl)
	if err != nil {
		return nil, err
	}
	nl.HTML = html

	if a.cfg.OutputDir != "" {
		if err := a.write(nl); err != nil {
			return nil, err
		}
	}

	a.logger.Info("newsletter assembled",
		"run_id", nl.RunID,
		"sections", len(nl.Sections),
		"warnings", len(nl.Warnings),
		"markdown", nl.Artifacts.MarkdownPath,
	)
	return nl, nil
}

// selectSections keeps run order and, when a selection is configured, only
// the selected topics.
func (a *Assembler) selectSections(summaries []domain.TopicSummary) []domain.TopicSummary {
	if len(a.cfg.SelectedTopics) == 0 {
		return append([]domain.TopicSummary(nil), summaries...)
	}
	wanted := make(map[string]bool, len(a.cfg.SelectedTopics))
	for _, name := range a.cfg.SelectedTopics {
		wanted[strings.ToLower(strings.TrimSpace(name))] = true
	}
	var out []domain.TopicSummary
	for _, s := range summaries {
		if wanted[strings.ToLower(s.TopicName)] {
			out = append(out, s)
		}
	}
	return out
}

func (a *Assembler) enrich(ctx context.Context, nl *domain.Newsletter) {
	names := make([]string, len(nl.Sections))
	for i, s := range nl.Sections {
		names[i] = s.TopicName
	}

	if a.extras.Cover != nil {
		path, err := a.extras.Cover.GenerateCover(ctx, nl.MainTopic, nl.ExecutiveSummary, names)
		if err != nil {
			a.warn(nl, "cover image", err)
		} else {
			nl.CoverImage = path
		}
	}

	terms := names
	if a.extras.Graph != nil {
		stats, keyTerms, err := a.extras.Graph.Build(ctx, nl.ExecutiveSummary, nl.Sections)
		if err != nil {
			a.warn(nl, "knowledge graph", err)
		} else {
			nl.KnowledgeGraph = &stats
			if len(keyTerms) > 0 {
				terms = keyTerms
			}
		}
	}

	if a.extras.Glossary != nil {
		glossary, err := a.extras.Glossary.Define(ctx, nl.MainTopic, terms)
		if err != nil {
			a.warn(nl, "glossary", err)
		} else {
			nl.Glossary = glossary
		}
	}
}

func (a *Assembler) warn(nl *domain.Newsletter, what string, err error) {
	msg := fmt.Sprintf("%s skipped: %v", what, err)
	nl.Warnings = append(nl.Warnings, msg)
	a.logger.Warn("enrichment failed", "step", what, "error", err)
}

func (a *Assembler) write(nl *domain.Newsletter) error {
	if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Join(a.cfg.OutputDir, "newsletter_"+nl.GeneratedAt.Format(timestampLayout))

	nl.Artifacts = domain.Artifacts{
		MarkdownPath: base + ".md",
		HTMLPath:     base + ".html",
		JSONPath:     base + ".json",
	}

	if err := os.WriteFile(nl.Artifacts.MarkdownPath, []byte(nl.Markdown), 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	if err := os.WriteFile(nl.Artifacts.HTMLPath, []byte(nl.HTML), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}

	payload, err := json.MarshalIndent(nl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal newsletter: %w", err)
	}
	if err := os.WriteFile(nl.Artifacts.JSONPath, payload, 0o644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func preheader(exec string, topics int) string {
	exec = strings.TrimSpace(exec)
	if exec == "" {
		return fmt.Sprintf("Latest developments across %d topics", topics)
	}
	if i := strings.Index(exec, ". "); i > 0 {
		exec = exec[:i+1]
	}
	r := []rune(exec)
	if len(r) > 140 {
		return string(r[:137]) + "..."
	}
	return exec
}
