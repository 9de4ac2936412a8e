package stream

import "github.com/raphaelgruber/victor/internal/models"

// Citations is an ordered set of citations keyed by URI. The first time a
// URI is seen fixes its position; a later title for the same URI replaces
// the earlier one.
type Citations struct {
	order []string
	byURI map[string]models.Citation
}

// Add merges a batch of citations into the set. Entries without a URI are skipped.
func (c *Citations) Add(batch ...models.Citation) {
	if c.byURI == nil {
		c.byURI = make(map[string]models.Citation)
	}
	for _, cit := range batch {
		if cit.URI == "" {
			continue
		}
		if _, ok := c.byURI[cit.URI]; !ok {
			c.order = append(c.order, cit.URI)
		}
		c.byURI[cit.URI] = cit
	}
}

// List returns the deduplicated citations in first-seen order.
func (c *Citations) List() []models.Citation {
	if len(c.order) == 0 {
		return nil
	}
	out := make([]models.Citation, len(c.order))
	for i, uri := range c.order {
		out[i] = c.byURI[uri]
	}
	return out
}

// Len returns the number of distinct URIs.
func (c *Citations) Len() int {
	return len(c.order)
}
