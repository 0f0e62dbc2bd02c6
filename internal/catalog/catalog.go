// Package catalog holds the static registry of trackable guides. The
// analytics core treats it as an external lookup table: rankings join
// against it for display metadata, nothing else.
package catalog

import "sort"

// Guide is the display metadata for one trackable guide.
type Guide struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Href  string `json:"href"`
	Group string `json:"group"`
}

// Lookup resolves guide ids to display metadata.
type Lookup interface {
	ByID(id string) (Guide, bool)
}

// Static is an in-process Lookup over a fixed guide set.
type Static struct {
	guides map[string]Guide
}

// NewStatic builds a catalog from the given guides, keyed by id.
func NewStatic(guides []Guide) *Static {
	m := make(map[string]Guide, len(guides))
	for _, g := range guides {
		m[g.ID] = g
	}
	return &Static{guides: m}
}

// Default returns the built-in guide catalog.
func Default() *Static {
	return NewStatic(defaultGuides)
}

// ByID returns the guide metadata for id.
func (s *Static) ByID(id string) (Guide, bool) {
	g, ok := s.guides[id]
	return g, ok
}

// ByGroup returns all guides in a group, ordered by id.
func (s *Static) ByGroup(group string) []Guide {
	var out []Guide
	for _, g := range s.guides {
		if g.Group == group {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every guide, ordered by id.
func (s *Static) All() []Guide {
	out := make([]Guide, 0, len(s.guides))
	for _, g := range s.guides {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var defaultGuides = []Guide{
	{ID: "what-is-a-prop-firm", Title: "What is a Prop Firm?", Href: "/guides/what-is-a-prop-firm", Group: "Beginner Basics"},
	{ID: "what-is-futures-trading", Title: "What is Futures Trading?", Href: "/guides/what-is-futures-trading", Group: "Beginner Basics"},
	{ID: "what-is-a-sim-account", Title: "What is a Sim Account?", Href: "/guides/what-is-a-sim-account", Group: "Beginner Basics"},
	{ID: "what-is-an-evaluation", Title: "What is a Prop Firm Evaluation?", Href: "/guides/what-is-an-evaluation", Group: "Beginner Basics"},
	{ID: "futures-trading-products", Title: "Futures Trading Products", Href: "/guides/futures-trading-products", Group: "Beginner Basics"},
	{ID: "best-way-to-start-trading-futures", Title: "Best Way to Start Trading Futures", Href: "/guides/best-way-to-start-trading-futures", Group: "Choosing an Account"},
	{ID: "best-prop-firm-to-start", Title: "Best Prop Firm to Start With", Href: "/guides/best-prop-firm-to-start", Group: "Choosing an Account"},
	{ID: "best-account-size-to-start", Title: "What Account Size Should I Start With?", Href: "/guides/best-account-size-to-start", Group: "Choosing an Account"},
	{ID: "should-i-skip-evaluation", Title: "Should I Skip the Evaluation?", Href: "/guides/should-i-skip-evaluation", Group: "Choosing an Account"},
	{ID: "what-is-straight-to-sim-funded", Title: "What is a Straight-to-Sim-Funded Account?", Href: "/guides/what-is-straight-to-sim-funded", Group: "Choosing an Account"},
	{ID: "personal-vs-prop-account", Title: "Personal Account vs Prop Account", Href: "/guides/personal-vs-prop-account", Group: "Choosing an Account"},
}
