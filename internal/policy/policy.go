// Package policy classifies connections as suspicious or benign.
//
// A Policy is built once at startup and never mutated afterwards, so it can
// be shared freely. Classification is an OR over an ordered list of named
// rules; adding a rule does not touch persistence or the monitor loop.
package policy

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/user/connwatch/internal/config"
	"github.com/user/connwatch/internal/connmon"
)

// Policy holds the watched ports, trusted listeners and private ranges.
type Policy struct {
	watchedPorts  map[uint16]string
	trustedListen map[uint16]bool
	privateRanges []netip.Prefix
	rules         []Rule
}

// New builds a Policy evaluated with DefaultRules.
func New(watched map[uint16]string, trustedListen []uint16, privateRanges []netip.Prefix) *Policy {
	p := &Policy{
		watchedPorts:  make(map[uint16]string, len(watched)),
		trustedListen: make(map[uint16]bool, len(trustedListen)),
		privateRanges: append([]netip.Prefix(nil), privateRanges...),
		rules:         DefaultRules(),
	}
	for port, label := range watched {
		p.watchedPorts[port] = label
	}
	for _, port := range trustedListen {
		p.trustedListen[port] = true
	}
	return p
}

// FromConfig builds a Policy from the policy section of the config.
func FromConfig(cfg config.Policy) (*Policy, error) {
	watched := make(map[uint16]string, len(cfg.WatchedPorts))
	for port, label := range cfg.WatchedPorts {
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid watched port: %d", port)
		}
		watched[uint16(port)] = label
	}

	trusted := make([]uint16, 0, len(cfg.TrustedListenPorts))
	for _, port := range cfg.TrustedListenPorts {
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid trusted listen port: %d", port)
		}
		trusted = append(trusted, uint16(port))
	}

	ranges := make([]netip.Prefix, 0, len(cfg.PrivateRanges))
	for _, r := range cfg.PrivateRanges {
		prefix, err := netip.ParsePrefix(r)
		if err != nil {
			return nil, fmt.Errorf("invalid private range %q: %w", r, err)
		}
		ranges = append(ranges, prefix.Masked())
	}

	return New(watched, trusted, ranges), nil
}

// Default returns the policy of config.DefaultConfig.
func Default() *Policy {
	p, err := FromConfig(config.DefaultConfig().Policy)
	if err != nil {
		panic(err)
	}
	return p
}

// WithRules returns a copy of p evaluated with rules instead of DefaultRules.
func (p *Policy) WithRules(rules ...Rule) *Policy {
	cp := *p
	cp.rules = append([]Rule(nil), rules...)
	return &cp
}

// Rules returns the names of the rules in evaluation order.
func (p *Policy) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.Name
	}
	return names
}

// WatchedLabel returns the label of a watched port.
func (p *Policy) WatchedLabel(port uint16) (string, bool) {
	label, ok := p.watchedPorts[port]
	return label, ok
}

// WatchedPorts returns the watched ports in ascending order.
func (p *Policy) WatchedPorts() []uint16 {
	ports := make([]uint16, 0, len(p.watchedPorts))
	for port := range p.watchedPorts {
		ports = append(ports, port)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}

// IsTrustedListener reports whether port is exempt from the listener rule.
func (p *Policy) IsTrustedListener(port uint16) bool {
	return p.trustedListen[port]
}

// IsPrivate reports whether addr falls in one of the private ranges.
// IPv4-mapped IPv6 addresses are matched as IPv4.
func (p *Policy) IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range p.privateRanges {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Classify returns true if any rule matches c.
func (p *Policy) Classify(c connmon.Connection) bool {
	for _, r := range p.rules {
		if r.Match(p, c) {
			return true
		}
	}
	return false
}

// Evaluate returns the names of every rule matching c, in rule order.
// len(Evaluate(c)) > 0 iff Classify(c).
func (p *Policy) Evaluate(c connmon.Connection) []string {
	var matched []string
	for _, r := range p.rules {
		if r.Match(p, c) {
			matched = append(matched, r.Name)
		}
	}
	return matched
}
