package audio

import (
	"strings"

	"github.com/rs/zerolog"
)

// Catalog lists host endpoints. Every call queries the host afresh; devices
// come and go, so nothing is cached.
type Catalog struct {
	host         Host
	preferredAPI string
	log          zerolog.Logger
}

// NewCatalog returns a catalog over host. When preferredAPI is non-empty and
// the host offers qualifying endpoints of that family, results are limited
// to it.
func NewCatalog(host Host, preferredAPI string, log zerolog.Logger) *Catalog {
	return &Catalog{
		host:         host,
		preferredAPI: strings.TrimSpace(preferredAPI),
		log:          log,
	}
}

// Inputs returns endpoints with at least one input channel. An empty result
// means the capture side must be disabled.
func (c *Catalog) Inputs() []Endpoint {
	return c.list(func(ep Endpoint) bool { return ep.MaxInputChannels > 0 })
}

// Outputs returns endpoints with at least one output channel.
func (c *Catalog) Outputs() []Endpoint {
	return c.list(func(ep Endpoint) bool { return ep.MaxOutputChannels > 0 })
}

func (c *Catalog) list(qualifies func(Endpoint) bool) []Endpoint {
	eps, err := c.host.Endpoints()
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to query audio endpoints")
		return []Endpoint{}
	}

	all := make([]Endpoint, 0, len(eps))
	var preferred []Endpoint
	for _, ep := range eps {
		if !qualifies(ep) {
			continue
		}
		all = append(all, ep)
		if c.preferredAPI != "" && strings.EqualFold(ep.HostAPI, c.preferredAPI) {
			preferred = append(preferred, ep)
		}
	}

	if len(preferred) > 0 {
		return preferred
	}
	if c.preferredAPI != "" {
		c.log.Debug().Str("host_api", c.preferredAPI).Msg("Preferred host API not present, using all endpoints")
	}
	return all
}
