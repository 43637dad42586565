package audio

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

var catalogEndpoints = []Endpoint{
	{ID: 0, Name: "Built-in Mic", HostAPI: "Core Audio", MaxInputChannels: 1},
	{ID: 1, Name: "Built-in Speakers", HostAPI: "Core Audio", MaxOutputChannels: 2},
	{ID: 2, Name: "USB Interface", HostAPI: "JACK Audio Connection Kit", MaxInputChannels: 2, MaxOutputChannels: 2},
	{ID: 3, Name: "Monitor Only", HostAPI: "JACK Audio Connection Kit", MaxOutputChannels: 2},
}

func names(eps []Endpoint) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.Name
	}
	return out
}

func equalNames(got []Endpoint, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].Name != want[i] {
			return false
		}
	}
	return true
}

func TestCatalogFiltering(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		inputs    []string
		outputs   []string
	}{
		{
			name:    "no preference",
			inputs:  []string{"Built-in Mic", "USB Interface"},
			outputs: []string{"Built-in Speakers", "USB Interface", "Monitor Only"},
		},
		{
			name:      "preferred family present",
			preferred: "jack audio connection kit",
			inputs:    []string{"USB Interface"},
			outputs:   []string{"USB Interface", "Monitor Only"},
		},
		{
			name:      "preferred family absent",
			preferred: "Windows WASAPI",
			inputs:    []string{"Built-in Mic", "USB Interface"},
			outputs:   []string{"Built-in Speakers", "USB Interface", "Monitor Only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCatalog(newFakeHost(catalogEndpoints...), tt.preferred, zerolog.Nop())
			if got := c.Inputs(); !equalNames(got, tt.inputs...) {
				t.Errorf("inputs: expected %v, got %v", tt.inputs, names(got))
			}
			if got := c.Outputs(); !equalNames(got, tt.outputs...) {
				t.Errorf("outputs: expected %v, got %v", tt.outputs, names(got))
			}
		})
	}
}

func TestCatalogEmptyIsNotAnError(t *testing.T) {
	host := newFakeHost(Endpoint{ID: 0, Name: "Speakers", MaxOutputChannels: 2})
	c := NewCatalog(host, "", zerolog.Nop())

	inputs := c.Inputs()
	if inputs == nil || len(inputs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", inputs)
	}

	host.queryErr = errors.New("host gone")
	if got := c.Outputs(); len(got) != 0 {
		t.Fatalf("expected empty outputs on host error, got %v", names(got))
	}
}

func TestCatalogQueriesHostEveryCall(t *testing.T) {
	host := newFakeHost(catalogEndpoints[0])
	c := NewCatalog(host, "", zerolog.Nop())

	if got := c.Inputs(); len(got) != 1 {
		t.Fatalf("expected 1 input, got %d", len(got))
	}

	host.mu.Lock()
	host.endpoints = append(host.endpoints, catalogEndpoints[2])
	host.mu.Unlock()

	if got := c.Inputs(); len(got) != 2 {
		t.Fatalf("expected newly attached device to appear, got %v", names(got))
	}
	if host.queries != 2 {
		t.Fatalf("expected 2 host queries, got %d", host.queries)
	}
}
