package connmon

import (
	"context"
	"fmt"
	"net/netip"
	"syscall"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// PsutilSource enumerates connections through gopsutil. It works on every
// platform gopsutil supports; owner pids need elevated privileges.
type PsutilSource struct{}

// Connections implements Source.
func (PsutilSource) Connections(ctx context.Context) ([]Connection, error) {
	stats, err := psnet.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate connections: %w", err)
	}

	conns := make([]Connection, 0, len(stats))
	for _, st := range stats {
		c, ok := fromConnectionStat(st)
		if !ok {
			continue
		}
		conns = append(conns, c)
	}
	return conns, nil
}

func fromConnectionStat(st psnet.ConnectionStat) (Connection, bool) {
	local, err := parseEndpoint(st.Laddr)
	if err != nil {
		return Connection{}, false
	}
	remote, err := parseEndpoint(st.Raddr)
	if err != nil {
		remote = netip.AddrPort{}
	}

	state, ok := ParseState(st.Status)
	if !ok {
		return Connection{}, false
	}

	proto := "TCP"
	if st.Type == syscall.SOCK_DGRAM {
		proto = "UDP"
	}

	return Connection{
		Protocol:   proto,
		LocalAddr:  local,
		RemoteAddr: normalizeRemote(remote),
		State:      state,
		PID:        st.Pid,
	}, true
}

func parseEndpoint(a psnet.Addr) (netip.AddrPort, error) {
	if a.IP == "" {
		return netip.AddrPort{}, fmt.Errorf("empty address")
	}
	ip, err := netip.ParseAddr(a.IP)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(ip.WithZone(""), uint16(a.Port)), nil
}
