package memory

import (
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// Names of the memories the pipeline keeps.
const (
	BullMemory        = "bull_memory"
	BearMemory        = "bear_memory"
	TraderMemory      = "trader_memory"
	InvestJudgeMemory = "invest_judge_memory"
	RiskJudgeMemory   = "risk_judge_memory"
)

// Registry hands out one long-lived Memory per name. Concurrent first access
// to the same name creates the collection once.
type Registry struct {
	mu       sync.Mutex
	db       *chromem.DB
	embed    chromem.EmbeddingFunc
	memories map[string]*Memory
}

func NewRegistry(db *chromem.DB, embed chromem.EmbeddingFunc) *Registry {
	return &Registry{db: db, embed: embed, memories: make(map[string]*Memory)}
}

// NewInMemoryRegistry keeps collections in process memory only.
func NewInMemoryRegistry(embed chromem.EmbeddingFunc) *Registry {
	return NewRegistry(chromem.NewDB(), embed)
}

// NewPersistentRegistry stores collections under dir.
func NewPersistentRegistry(dir string, embed chromem.EmbeddingFunc) (*Registry, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open memory db %s: %w", dir, err)
	}
	return NewRegistry(db, embed), nil
}

// Disabled returns a registry whose stores remember nothing.
func Disabled() *Registry {
	return &Registry{}
}

// Enabled reports whether lookups can return anything.
func (r *Registry) Enabled() bool {
	return r != nil && r.db != nil
}

// GetOrCreate returns the memory called name, creating it on first use.
func (r *Registry) GetOrCreate(name string) (Store, error) {
	if !r.Enabled() {
		return noop{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.memories[name]; ok {
		return m, nil
	}
	col, err := r.db.GetOrCreateCollection(name, nil, r.embed)
	if err != nil {
		return nil, fmt.Errorf("create memory %s: %w", name, err)
	}
	m := newMemory(name, col)
	r.memories[name] = m
	return m, nil
}

// GetOrNop is GetOrCreate for callers without an error path; a failure
// yields a store that remembers nothing.
func (r *Registry) GetOrNop(name string) Store {
	s, err := r.GetOrCreate(name)
	if err != nil {
		return noop{}
	}
	return s
}

// OpenAIEmbedder embeds through an OpenAI-compatible endpoint.
func OpenAIEmbedder(baseURL, apiKey, model string) chromem.EmbeddingFunc {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil)
}
