package router

import (
	"fmt"

	"github.com/kalambet/bolla/internal/llm"
)

// Chains maps each tier to the ordered backends tried for it.
type Chains map[Tier][]llm.BackendID

// DefaultChains favors the local model for cheap work and the strongest
// hosted model for hard work.
func DefaultChains() Chains {
	return Chains{
		Simple:  {llm.Ollama, llm.Grok, llm.Anthropic},
		Medium:  {llm.Grok, llm.Ollama, llm.Anthropic},
		Complex: {llm.Anthropic, llm.Grok, llm.Ollama},
	}
}

// NewChains copies spec, dropping repeated backends within a tier. Tiers
// missing from spec keep their default chain.
func NewChains(spec map[Tier][]llm.BackendID) (Chains, error) {
	out := DefaultChains()
	for tier, ids := range spec {
		if !tier.Valid() {
			return nil, fmt.Errorf("chain for unknown tier %q", tier)
		}
		seen := make(map[llm.BackendID]bool, len(ids))
		chain := make([]llm.BackendID, 0, len(ids))
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			chain = append(chain, id)
		}
		if len(chain) == 0 {
			return nil, fmt.Errorf("chain for tier %q is empty", tier)
		}
		out[tier] = chain
	}
	return out, nil
}

// LocalOnly is the force-local chain: id for every tier.
func LocalOnly(id llm.BackendID) Chains {
	c := make(Chains, len(Tiers))
	for _, t := range Tiers {
		c[t] = []llm.BackendID{id}
	}
	return c
}
