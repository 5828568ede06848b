// Package synth turns ranked chunks into a grounded answer with source
// attribution.
package synth

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/HanTheDev/onboard-assistant/internal/llm"
	"github.com/HanTheDev/onboard-assistant/internal/models"
)

const (
	DefaultMaxTokens = 1000
	previewRunes     = 200
	contextRule      = "\n\n---\n\n"
)

const systemPrompt = `You are the internal knowledge assistant for a company. You answer employee questions using only the company information provided to you below.

Rules:
- Answer strictly from the provided information. Do not use outside knowledge and do not guess.
- If the information does not answer the question, say plainly that you could not find it in the company's documents and suggest who or what the employee could ask instead.
- Never mention "context", "chunks", "documents provided" or how the information was supplied. Speak as someone who knows the company.
- For broad or overview questions, combine what the different sources say into one coherent summary.
- Ignore fragments that look like website or app navigation, menus, buttons or repeated boilerplate.
- Answer in the same language as the question. Be concise and use short lists when they help.`

// ResourceReader resolves resource descriptors for attribution.
type ResourceReader interface {
	GetResources(ctx context.Context, ids []string) ([]models.Resource, error)
}

type Synthesizer struct {
	completer llm.Completer
	resources ResourceReader
	maxTokens int
	logger    *zap.Logger
}

func New(completer llm.Completer, resources ResourceReader, maxTokens int, logger *zap.Logger) *Synthesizer {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Synthesizer{completer: completer, resources: resources, maxTokens: maxTokens, logger: logger}
}

func SystemPrompt() string { return systemPrompt }

// BuildUserPrompt joins chunk texts with a rule and appends the question.
func BuildUserPrompt(query string, chunks []models.RetrievedChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = strings.TrimSpace(c.Text)
	}

	var b strings.Builder
	b.WriteString("Company information:\n\n")
	b.WriteString(strings.Join(texts, contextRule))
	b.WriteString(contextRule)
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}

func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []models.RetrievedChunk, tenantID string) (string, []models.SourceAttribution, error) {
	for _, c := range chunks {
		if c.TenantID != tenantID {
			s.logger.Error("chunk tenant does not match query tenant",
				zap.String("tenant_id", tenantID),
				zap.String("chunk_tenant_id", c.TenantID),
				zap.String("chunk_id", c.ID),
			)
			return "", nil, fmt.Errorf("%w: chunk %s", models.ErrTenantMismatch, c.ID)
		}
	}

	sources, err := s.attribute(ctx, chunks, tenantID)
	if err != nil {
		return "", nil, err
	}

	answer, err := s.completer.Complete(ctx, systemPrompt, BuildUserPrompt(query, chunks), s.maxTokens)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", models.ErrSynthesis, err)
	}
	return answer, sources, nil
}

// attribute cites each contributing resource once, using its best chunk.
func (s *Synthesizer) attribute(ctx context.Context, chunks []models.RetrievedChunk, tenantID string) ([]models.SourceAttribution, error) {
	best := make(map[string]models.RetrievedChunk)
	var ids []string
	for _, c := range chunks {
		cur, ok := best[c.ResourceID]
		if !ok {
			ids = append(ids, c.ResourceID)
		}
		if !ok || c.Score > cur.Score {
			best[c.ResourceID] = c
		}
	}
	if len(ids) == 0 {
		return []models.SourceAttribution{}, nil
	}

	resources, err := s.resources.GetResources(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load source resources: %w", err)
	}
	byID := make(map[string]models.Resource, len(resources))
	for _, r := range resources {
		if r.TenantID != tenantID {
			s.logger.Error("resource tenant does not match query tenant",
				zap.String("tenant_id", tenantID),
				zap.String("resource_id", r.ID),
			)
			return nil, fmt.Errorf("%w: resource %s", models.ErrTenantMismatch, r.ID)
		}
		byID[r.ID] = r
	}

	sources := make([]models.SourceAttribution, 0, len(ids))
	for _, id := range ids {
		c := best[id]
		src := models.SourceAttribution{
			ResourceID: id,
			Score:      c.Score,
			Preview:    preview(c.Text),
		}
		if r, ok := byID[id]; ok {
			src.Title = r.Title
			src.Kind = r.Kind
			src.Location = r.Location()
		} else {
			s.logger.Warn("source resource not found", zap.String("resource_id", id))
		}
		sources = append(sources, src)
	}
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Score > sources[j].Score })
	return sources, nil
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return strings.TrimSpace(string(r[:previewRunes])) + "..."
}
