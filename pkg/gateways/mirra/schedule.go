package mirra

import (
	"sort"

	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/protocol"
)

// MaxMessages is the number of DATA messages a node may send in one comm
// period: enough for one and a half comm intervals of samples, capped by
// the window capacity.
func MaxMessages(commInterval, sampleInterval uint32) uint32 {
	if sampleInterval == 0 {
		return protocol.WindowCapacity
	}
	return min(3*commInterval/(2*sampleInterval)+1, protocol.WindowCapacity)
}

// windowEnd is the first second after the comm period of n, padding included.
func windowEnd(n entities.Node, timing entities.TimingConfig) uint32 {
	return n.NextCommTime + timing.WindowLength(n.MaxMessages) + timing.PaddingSec
}

// allLost reports whether no node runs on the comm interval in force.
// It holds for an empty network.
func allLost(nodes []entities.Node, commInterval uint32) bool {
	for _, n := range nodes {
		if !n.IsLost(commInterval) {
			return false
		}
	}
	return true
}

// nextAvailableSlot returns the earliest comm time that does not overlap any
// scheduled comm period. Lost nodes are ignored since they are rescheduled at
// their next contact.
func nextAvailableSlot(nodes []entities.Node, commInterval, now uint32, timing entities.TimingConfig) uint32 {
	if allLost(nodes, commInterval) {
		return now + commInterval
	}
	var slot uint32
	for _, n := range nodes {
		if n.IsLost(commInterval) {
			continue
		}
		slot = max(slot, windowEnd(n, timing))
	}
	return slot
}

// projectServed returns a copy of nodes in which every on-schedule node of
// pending already runs on the schedule it gets once served.
func projectServed(nodes, pending []entities.Node, commInterval uint32) []entities.Node {
	projected := make([]entities.Node, len(nodes))
	copy(projected, nodes)
	for _, p := range pending {
		for i := range projected {
			n := &projected[i]
			if n.Address != p.Address || n.IsLost(commInterval) {
				continue
			}
			n.NextCommTime += commInterval
			n.MaxMessages = MaxMessages(commInterval, n.SampleInterval)
		}
	}
	return projected
}

func sortByNextComm(nodes []entities.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].NextCommTime < nodes[j].NextCommTime
	})
}

// batch returns how many of the sorted nodes are served in one wake: every
// node whose comm time falls before the end of the previous comm period.
func batch(nodes []entities.Node, timing entities.TimingConfig) int {
	if len(nodes) == 0 {
		return 0
	}
	horizon := windowEnd(nodes[0], timing)
	count := 1
	for _, n := range nodes[1:] {
		if n.NextCommTime > horizon {
			break
		}
		horizon = max(horizon, windowEnd(n, timing))
		count++
	}
	return count
}
