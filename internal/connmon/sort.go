package connmon

import "sort"

// SortConnectionsByState orders a snapshot so every pass appends rows in the
// same order: ESTABLISHED, LISTEN, TIME_WAIT, then the rest; ties by local
// then remote endpoint.
func SortConnectionsByState(conns []Connection) {
	sort.SliceStable(conns, func(i, j int) bool {
		pi := statePriority(conns[i].State)
		pj := statePriority(conns[j].State)
		if pi != pj {
			return pi < pj
		}
		if c := conns[i].LocalAddr.Compare(conns[j].LocalAddr); c != 0 {
			return c < 0
		}
		return conns[i].RemoteAddr.Compare(conns[j].RemoteAddr) < 0
	})
}

func statePriority(s ConnState) int {
	switch s {
	case StateEstablished:
		return 0
	case StateListen:
		return 1
	case StateTimeWait:
		return 2
	case StateSynSent:
		return 3
	case StateCloseWait:
		return 4
	default:
		return 5
	}
}
