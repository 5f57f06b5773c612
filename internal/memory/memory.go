// Package memory stores past situations and the lessons drawn from them so
// later runs can retrieve similar cases.
package memory

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/dyike/cortextrader/internal/logger"
)

const recommendationKey = "recommendation"

// Match is one retrieved memory.
type Match struct {
	Situation      string  `json:"matched_situation"`
	Recommendation string  `json:"recommendation"`
	Similarity     float32 `json:"similarity"`
}

// Entry is a situation and the recommendation learned from it.
type Entry struct {
	Situation      string
	Recommendation string
}

// Store is the lookup/insert capability agents consume.
type Store interface {
	Lookup(ctx context.Context, situation string, k int) ([]Match, error)
	Add(ctx context.Context, entries []Entry) error
}

// Memory is a Store backed by one chromem collection.
type Memory struct {
	name string
	col  *chromem.Collection
	log  *zap.SugaredLogger
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Lookup(ctx context.Context, situation string, k int) ([]Match, error) {
	if strings.TrimSpace(situation) == "" || k <= 0 {
		return nil, nil
	}
	// chromem rejects nResults larger than the collection
	n := m.col.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := m.col.Query(ctx, situation, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query memory %s: %w", m.name, err)
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Situation:      r.Content,
			Recommendation: r.Metadata[recommendationKey],
			Similarity:     r.Similarity,
		})
	}
	m.log.Debugw("memory lookup", "k", k, "matches", len(matches))
	return matches, nil
}

func (m *Memory) Add(ctx context.Context, entries []Entry) error {
	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Situation) == "" {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:       uuid.NewString(),
			Content:  e.Situation,
			Metadata: map[string]string{recommendationKey: e.Recommendation},
		})
	}
	if len(docs) == 0 {
		return nil
	}
	if err := m.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add to memory %s: %w", m.name, err)
	}
	m.log.Infow("memory updated", "added", len(docs), "total", m.col.Count())
	return nil
}

// Count returns the number of stored situations.
func (m *Memory) Count() int { return m.col.Count() }

// noop is what a disabled registry hands out.
type noop struct{}

func (noop) Lookup(context.Context, string, int) ([]Match, error) { return nil, nil }
func (noop) Add(context.Context, []Entry) error                   { return nil }

// FormatMatches renders matches as a numbered list for prompts.
func FormatMatches(matches []Match) string {
	if len(matches) == 0 {
		return "No past memories found."
	}
	var b strings.Builder
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, m.Recommendation)
	}
	return strings.TrimSpace(b.String())
}

func newMemory(name string, col *chromem.Collection) *Memory {
	return &Memory{name: name, col: col, log: logger.With("memory", name)}
}
