package manifest

import "errors"

// Config is the top-level manifest.
type Config struct {
	Routes []Route `toml:"route"`
}

// Validate normalizes every route in place and reports the first problem.
func (c *Config) Validate() error {
	if len(c.Routes) == 0 {
		return errors.New("no routes defined")
	}
	return c.validateRoutes()
}

// Destinations lists the distinct destination names the manifest references.
func (c *Config) Destinations() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range c.Routes {
		if !r.Handler.Type.IsDestination() || r.Handler.Destination == nil {
			continue
		}
		if n := r.Handler.Destination.Name; !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
