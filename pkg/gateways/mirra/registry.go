package mirra

import (
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/entities"
	"github.com/janael-pinheiro/mirra-gateway-golang/pkg/storage"
	"github.com/sirupsen/logrus"
)

const (
	nodesKey      = "nodes"
	parametersKey = "parameters"
)

// Registry is the persisted list of registered nodes, kept sorted by next
// comm time, together with the global parameters.
type Registry struct {
	nodes  []entities.Node
	params entities.Parameters
	store  storage.Store
	log    *logrus.Entry
}

// LoadRegistry restores the registry from store. Unreadable entries are
// logged and replaced by an empty network running on defaults.
func LoadRegistry(store storage.Store, defaults entities.Parameters, log *logrus.Entry) *Registry {
	r := &Registry{store: store, log: log}

	nodes, err := storage.GetOrDefault(store, nodesKey, []entities.Node{})
	if err != nil {
		log.Errorf("restoring nodes: %v", err)
	}
	params, err := storage.GetOrDefault(store, parametersKey, defaults)
	if err != nil {
		log.Errorf("restoring parameters: %v", err)
	}

	r.nodes = nodes
	r.params = params
	r.Sort()
	return r
}

func (r *Registry) Len() int { return len(r.nodes) }

func (r *Registry) Parameters() entities.Parameters { return r.params }

// Nodes returns a copy of the registered nodes in schedule order.
func (r *Registry) Nodes() []entities.Node {
	nodes := make([]entities.Node, len(r.nodes))
	copy(nodes, r.nodes)
	return nodes
}

func (r *Registry) Find(address entities.Address) (entities.Node, bool) {
	i := r.index(address)
	if i < 0 {
		return entities.Node{}, false
	}
	return r.nodes[i], true
}

func (r *Registry) index(address entities.Address) int {
	for i, n := range r.nodes {
		if n.Address == address {
			return i
		}
	}
	return -1
}

func (r *Registry) add(n entities.Node) {
	r.nodes = append(r.nodes, n)
}

func (r *Registry) remove(address entities.Address) bool {
	i := r.index(address)
	if i < 0 {
		return false
	}
	r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
	return true
}

// update replaces the stored record of n's address.
func (r *Registry) update(n entities.Node) bool {
	i := r.index(n.Address)
	if i < 0 {
		return false
	}
	r.nodes[i] = n
	return true
}

func (r *Registry) setParameters(p entities.Parameters) {
	r.params = p
}

func (r *Registry) Sort() {
	sortByNextComm(r.nodes)
}

// Persist saves nodes and parameters. Failures are logged only: the radio
// schedule goes on with the in-memory state.
func (r *Registry) Persist() {
	if err := r.store.Set(nodesKey, r.nodes); err != nil {
		r.log.Errorf("persisting nodes: %v", err)
	}
	if err := r.store.Set(parametersKey, r.params); err != nil {
		r.log.Errorf("persisting parameters: %v", err)
	}
}
