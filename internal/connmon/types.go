// Package connmon samples the host's network connections and resolves the
// processes that own them.
package connmon

import (
	"fmt"
	"net/netip"
	"strings"
)

// ConnState represents the state of a TCP connection.
type ConnState int

const (
	StateNone        ConnState = 0 // connectionless sockets
	StateClosed      ConnState = 1
	StateListen      ConnState = 2
	StateSynSent     ConnState = 3
	StateSynReceived ConnState = 4
	StateEstablished ConnState = 5
	StateFinWait1    ConnState = 6
	StateFinWait2    ConnState = 7
	StateCloseWait   ConnState = 8
	StateClosing     ConnState = 9
	StateLastAck     ConnState = 10
	StateTimeWait    ConnState = 11
)

// String returns a human-readable name for the connection state. The names
// are the ones persisted in the status column.
func (s ConnState) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateClosed:
		return "CLOSE"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECV"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT1"
	case StateFinWait2:
		return "FIN_WAIT2"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateTimeWait:
		return "TIME_WAIT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ParseState maps the state spellings used by the various platform tools
// to a ConnState. The second result is false for unrecognized input.
func ParseState(s string) (ConnState, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return StateNone, true
	case "ESTABLISHED":
		return StateEstablished, true
	case "SYN_SENT":
		return StateSynSent, true
	case "SYN_RECEIVED", "SYN_RECV":
		return StateSynReceived, true
	case "FIN_WAIT_1", "FIN_WAIT1":
		return StateFinWait1, true
	case "FIN_WAIT_2", "FIN_WAIT2":
		return StateFinWait2, true
	case "TIME_WAIT":
		return StateTimeWait, true
	case "CLOSE_WAIT":
		return StateCloseWait, true
	case "LAST_ACK":
		return StateLastAck, true
	case "CLOSING":
		return StateClosing, true
	case "LISTEN":
		return StateListen, true
	case "CLOSE", "CLOSED", "DELETE":
		return StateClosed, true
	default:
		return StateNone, false
	}
}

// Connection is one socket as reported by a Source.
type Connection struct {
	Protocol   string // "TCP" or "UDP"
	LocalAddr  netip.AddrPort
	RemoteAddr netip.AddrPort // invalid when the socket has no peer
	State      ConnState
	PID        int32 // 0 when the owner could not be determined
}

// HasRemote reports whether the connection has a peer endpoint.
func (c *Connection) HasRemote() bool {
	return c.RemoteAddr.IsValid()
}

// Key returns a unique key for this connection.
func (c *Connection) Key() string {
	return fmt.Sprintf("%s|%s|%s", c.Protocol, c.LocalAddr, c.RemoteAddr)
}

// normalizeRemote turns the "no peer" encodings used by the kernel
// (0.0.0.0:0, [::]:0) into the zero AddrPort.
func normalizeRemote(ap netip.AddrPort) netip.AddrPort {
	if !ap.IsValid() {
		return netip.AddrPort{}
	}
	if ap.Addr().IsUnspecified() && ap.Port() == 0 {
		return netip.AddrPort{}
	}
	return ap
}
