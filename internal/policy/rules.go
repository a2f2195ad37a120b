package policy

import "github.com/user/connwatch/internal/connmon"

// Rule is a named predicate over a connection and the policy.
type Rule struct {
	Name  string
	Match func(p *Policy, c connmon.Connection) bool
}

// Rule names.
const (
	RuleWatchedPort        = "watched_port"
	RuleUnexpectedListener = "unexpected_listener"
	RuleExternalPeer       = "external_peer"
)

// WatchedPort matches connections whose local port is watched, whatever
// their state or peer.
var WatchedPort = Rule{
	Name: RuleWatchedPort,
	Match: func(p *Policy, c connmon.Connection) bool {
		_, ok := p.watchedPorts[c.LocalAddr.Port()]
		return ok
	},
}

// UnexpectedListener matches listening sockets on untrusted ports.
var UnexpectedListener = Rule{
	Name: RuleUnexpectedListener,
	Match: func(p *Policy, c connmon.Connection) bool {
		return c.State == connmon.StateListen && !p.trustedListen[c.LocalAddr.Port()]
	},
}

// ExternalPeer matches connections with a peer outside the private ranges.
var ExternalPeer = Rule{
	Name: RuleExternalPeer,
	Match: func(p *Policy, c connmon.Connection) bool {
		return c.HasRemote() && !p.IsPrivate(c.RemoteAddr.Addr())
	},
}

// DefaultRules returns the standard rule set.
func DefaultRules() []Rule {
	return []Rule{WatchedPort, UnexpectedListener, ExternalPeer}
}
