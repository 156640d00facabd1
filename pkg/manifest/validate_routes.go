package manifest

import (
	"fmt"
	"strings"
)

// validateRoutes runs per-route checks plus the cross-route ones.
func (c *Config) validateRoutes() error {
	seen := map[string]int{}
	for i := range c.Routes {
		r := &c.Routes[i]
		if err := r.normalize(); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("route %d (%s %s): %w", i, r.Method, r.Path, err)
		}
		if d := r.Handler.Destination; d != nil && d.Path != "" && !strings.HasPrefix(d.Path, "/") {
			return fmt.Errorf("route %d (%s %s): handler.destination.path must start with /", i, r.Method, r.Path)
		}

		key := r.Method + " " + r.Path
		if j, dup := seen[key]; dup {
			return fmt.Errorf("route %d (%s): duplicates route %d", i, key, j)
		}
		seen[key] = i
	}
	return nil
}
