//go:build linux

package connmon

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// linuxStates maps the hex state column of /proc/net/tcp to ConnState.
var linuxStates = map[uint64]ConnState{
	0x01: StateEstablished,
	0x02: StateSynSent,
	0x03: StateSynReceived,
	0x04: StateFinWait1,
	0x05: StateFinWait2,
	0x06: StateTimeWait,
	0x07: StateClosed,
	0x08: StateCloseWait,
	0x09: StateLastAck,
	0x0A: StateListen,
	0x0B: StateClosing,
}

// ProcfsSource reads /proc/net directly and attributes sockets to pids by
// walking /proc/<pid>/fd.
type ProcfsSource struct {
	root string // "/proc" outside tests
}

func newProcfsSource() (Source, error) {
	return &ProcfsSource{root: "/proc"}, nil
}

// Connections implements Source.
func (s *ProcfsSource) Connections(ctx context.Context) ([]Connection, error) {
	inodes := s.socketOwners(ctx)

	tables := []struct {
		file  string
		proto string
		ipv6  bool
	}{
		{"net/tcp", "TCP", false},
		{"net/tcp6", "TCP", true},
		{"net/udp", "UDP", false},
		{"net/udp6", "UDP", true},
	}

	var conns []Connection
	var firstErr error
	read := 0
	for _, tbl := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := parseProcNet(filepath.Join(s.root, tbl.file), tbl.proto, tbl.ipv6, inodes)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		read++
		conns = append(conns, found...)
	}

	if read == 0 && firstErr != nil {
		return nil, fmt.Errorf("failed to read /proc/net: %w", firstErr)
	}

	return conns, nil
}

// socketOwners maps socket inode -> pid. Unreadable fd directories (other
// users' processes without privileges) are skipped.
func (s *ProcfsSource) socketOwners(ctx context.Context) map[string]int32 {
	owners := make(map[string]int32)
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return owners
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return owners
		}
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.ParseInt(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		fdDir := filepath.Join(s.root, e.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if strings.HasPrefix(link, "socket:[") && strings.HasSuffix(link, "]") {
				owners[link[8:len(link)-1]] = int32(pid)
			}
		}
	}
	return owners
}

func parseProcNet(path, proto string, ipv6 bool, owners map[string]int32) ([]Connection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var conns []Connection
	scanner := bufio.NewScanner(f)
	scanner.Scan() // skip header

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		local, err := parseHexAddrPort(fields[1], ipv6)
		if err != nil {
			continue
		}
		remote, err := parseHexAddrPort(fields[2], ipv6)
		if err != nil {
			continue
		}

		state := StateNone
		if proto == "TCP" {
			stateVal, err := strconv.ParseUint(fields[3], 16, 8)
			if err != nil {
				continue
			}
			st, ok := linuxStates[stateVal]
			if !ok {
				continue
			}
			state = st
		}

		// inode is in field 9
		conns = append(conns, Connection{
			Protocol:   proto,
			LocalAddr:  local,
			RemoteAddr: normalizeRemote(remote),
			State:      state,
			PID:        owners[fields[9]],
		})
	}

	return conns, scanner.Err()
}

func parseHexAddrPort(s string, ipv6 bool) (netip.AddrPort, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return netip.AddrPort{}, fmt.Errorf("invalid format: %s", s)
	}

	ipBytes, err := hex.DecodeString(parts[0])
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid ip: %s", parts[0])
	}

	var ip netip.Addr
	switch {
	case !ipv6 && len(ipBytes) == 4:
		// Linux stores IP in little-endian
		ip = netip.AddrFrom4([4]byte{ipBytes[3], ipBytes[2], ipBytes[1], ipBytes[0]})
	case ipv6 && len(ipBytes) == 16:
		// four little-endian 32-bit words
		var b [16]byte
		for i := 0; i < 4; i++ {
			b[i*4+0] = ipBytes[i*4+3]
			b[i*4+1] = ipBytes[i*4+2]
			b[i*4+2] = ipBytes[i*4+1]
			b[i*4+3] = ipBytes[i*4+0]
		}
		ip = netip.AddrFrom16(b)
	default:
		return netip.AddrPort{}, fmt.Errorf("invalid ip: %s", parts[0])
	}

	portVal, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid port: %s", parts[1])
	}

	return netip.AddrPortFrom(ip, uint16(portVal)), nil
}
