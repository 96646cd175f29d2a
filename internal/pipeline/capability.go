package pipeline

import (
	"fmt"
	"strings"
)

// Capability names one of the four gated actions.
type Capability uint8

// Capabilities in pipeline order.
const (
	Generate Capability = iota
	Upload
	Retrieve
	Predict
)

// Capabilities returns every capability in pipeline order.
func Capabilities() []Capability {
	return []Capability{Generate, Upload, Retrieve, Predict}
}

// String returns the capability's upper-case name.
func (c Capability) String() string {
	switch c {
	case Generate:
		return "GENERATE"
	case Upload:
		return "UPLOAD"
	case Retrieve:
		return "RETRIEVE"
	case Predict:
		return "PREDICT"
	default:
		return fmt.Sprintf("Capability(%d)", uint8(c))
	}
}

// Stage returns the lower-case name used in logs and metric labels.
func (c Capability) Stage() string {
	return strings.ToLower(c.String())
}

// ParseCapability accepts either the upper- or lower-case name.
func ParseCapability(s string) (Capability, error) {
	for _, c := range Capabilities() {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown capability %q", s)
}

// GateSet is the set of unlocked capabilities.
// The zero value is empty; NewGateSet returns the initial {GENERATE} set.
type GateSet struct {
	bits uint8
}

// NewGateSet returns the set an orchestrator starts from and resets to.
func NewGateSet() GateSet {
	return GateSet{}.With(Generate)
}

// Has reports whether c is unlocked.
func (g GateSet) Has(c Capability) bool {
	return g.bits&(1<<c) != 0
}

// With returns g with c unlocked. There is no operation that removes a
// capability.
func (g GateSet) With(c Capability) GateSet {
	g.bits |= 1 << c
	return g
}

// Contains reports whether every capability in other is also in g.
func (g GateSet) Contains(other GateSet) bool {
	return g.bits&other.bits == other.bits
}

// List returns the unlocked capabilities in pipeline order.
func (g GateSet) List() []Capability {
	var out []Capability
	for _, c := range Capabilities() {
		if g.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the unlocked capability names in pipeline order.
func (g GateSet) Names() []string {
	list := g.List()
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = c.String()
	}
	return names
}

// String formats the set as "{GENERATE, UPLOAD}".
func (g GateSet) String() string {
	return "{" + strings.Join(g.Names(), ", ") + "}"
}
