// Package routing selects which provider and tier serve each model call.
package routing

import (
	"fmt"

	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/pkg/models"
)

// defaultAffinity maps subjects to the provider that handles them best on
// first attempt. Subjects not listed fall through to the default provider.
var defaultAffinity = map[models.Subject]string{
	models.SubjectMath:      "anthropic",
	models.SubjectPhysics:   "anthropic",
	models.SubjectChinese:   "anthropic",
	models.SubjectChemistry: "openai",
	models.SubjectBiology:   "openai",
	models.SubjectEnglish:   "openai",
}

const defaultProvider = "anthropic"

// checkProvider is the provider preferred for independent answer checks. It
// must differ from the usual generation providers so verification does not
// share the generator's failure mode.
const checkProvider = "google"

// Selector chooses a provider handle per call site: strong tier for
// generation (with retry rotation), fast tier for classification,
// verification, and evaluation.
type Selector struct {
	registry *provider.Registry
	affinity map[models.Subject]string
	fallback string
}

// NewSelector creates a Selector over the given registry.
func NewSelector(registry *provider.Registry) *Selector {
	return &Selector{
		registry: registry,
		affinity: defaultAffinity,
		fallback: defaultProvider,
	}
}

// Generation resolves the strong-tier handle for a generation attempt.
//
// Attempt 0 uses the preferred provider when given, else the subject affinity
// table. Retries rotate through the registry order offset by the attempt
// number, so a retry never reuses the provider of the previous attempt and
// eventually cycles every provider.
func (s *Selector) Generation(preferred string, subject models.Subject, attempt int) (*provider.Handle, error) {
	order := s.registry.Order()
	if len(order) == 0 {
		return nil, fmt.Errorf("routing: no providers registered")
	}

	base := preferred
	if base == "" || !s.registry.Has(base) {
		base = s.affinity[subject]
	}
	if base == "" || !s.registry.Has(base) {
		base = s.fallback
	}
	if !s.registry.Has(base) {
		base = order[0]
	}

	name := base
	if attempt > 0 {
		idx := 0
		for i, candidate := range order {
			if candidate == base {
				idx = i
				break
			}
		}
		name = order[(idx+attempt)%len(order)]
	}

	return s.registry.Resolve(name, provider.TierStrong)
}

// Classification resolves the fast-tier handle used to classify problems.
func (s *Selector) Classification() (*provider.Handle, error) {
	return s.fastTier(s.fallback)
}

// Verification resolves the fast-tier handle for the independent answer
// check, preferring a provider distinct from the generation affinities.
func (s *Selector) Verification() (*provider.Handle, error) {
	return s.fastTier(checkProvider)
}

// Evaluation resolves the fast-tier handle for background deep evaluation.
func (s *Selector) Evaluation() (*provider.Handle, error) {
	return s.fastTier(checkProvider)
}

func (s *Selector) fastTier(preferred string) (*provider.Handle, error) {
	name := preferred
	if !s.registry.Has(name) {
		order := s.registry.Order()
		if len(order) == 0 {
			return nil, fmt.Errorf("routing: no providers registered")
		}
		name = order[0]
	}
	return s.registry.Resolve(name, provider.TierFast)
}
