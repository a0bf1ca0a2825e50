package catalog

// Resolve returns the install order for an item: a depth-first post-order walk
// of its dependency graph, so every dependency is listed before the items that
// depend on it, each identifier exactly once. Already-visited items are
// skipped, which also terminates cyclic or self-referential graphs. An unknown
// item contributes nothing.
func (c *Catalog) Resolve(name string) []string {
	var order []string
	seen := make(map[string]bool)

	var visit func(string)
	visit = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true

		spec, ok := c.specs[n]
		if !ok {
			return
		}
		for _, dep := range spec.Dependencies {
			visit(dep)
		}
		order = append(order, n)
	}

	visit(name)
	return order
}
