package entities

// TimeConfig is the schedule a gateway hands to a node in a CONFIG message.
// All fields are seconds except MaxMessages.
type TimeConfig struct {
	CurTime        uint32 `yaml:"curTime"`
	SampleInterval uint32 `yaml:"sampleInterval"`
	SampleRounding uint32 `yaml:"sampleRounding"`
	SampleOffset   uint32 `yaml:"sampleOffset"`
	CommInterval   uint32 `yaml:"commInterval"`
	CommTime       uint32 `yaml:"commTime"`
	MaxMessages    uint32 `yaml:"maxMessages"`
}

// Parameters are the global intervals a gateway applies to its network.
type Parameters struct {
	SampleInterval uint32 `yaml:"sampleInterval"`
	SampleRounding uint32 `yaml:"sampleRounding"`
	SampleOffset   uint32 `yaml:"sampleOffset"`
	CommInterval   uint32 `yaml:"commInterval"`
}

// Node is the gateway-side record of a registered sensor node.
type Node struct {
	Address        Address `yaml:"address"`
	SampleInterval uint32  `yaml:"sampleInterval"`
	SampleRounding uint32  `yaml:"sampleRounding"`
	SampleOffset   uint32  `yaml:"sampleOffset"`
	LastCommTime   uint32  `yaml:"lastCommTime"`
	CommInterval   uint32  `yaml:"commInterval"`
	NextCommTime   uint32  `yaml:"nextCommTime"`
	MaxMessages    uint32  `yaml:"maxMessages"`
	Errors         uint32  `yaml:"errors"`
}

func NewNode(address Address, config TimeConfig) Node {
	n := Node{Address: address}
	n.apply(config)
	return n
}

func (n *Node) apply(config TimeConfig) {
	n.SampleInterval = config.SampleInterval
	n.SampleRounding = config.SampleRounding
	n.SampleOffset = config.SampleOffset
	n.LastCommTime = config.CurTime
	n.CommInterval = config.CommInterval
	n.NextCommTime = config.CommTime
	n.MaxMessages = config.MaxMessages
}

// Configure records a CONFIG the node acknowledged. A successful contact
// pays back one error.
func (n *Node) Configure(config TimeConfig) {
	n.apply(config)
	if n.Errors > 0 {
		n.Errors--
	}
}

// CurrentConfig rebuilds the CONFIG the node is currently running on.
func (n Node) CurrentConfig(now uint32) TimeConfig {
	return TimeConfig{
		CurTime:        now,
		SampleInterval: n.SampleInterval,
		SampleRounding: n.SampleRounding,
		SampleOffset:   n.SampleOffset,
		CommInterval:   n.CommInterval,
		CommTime:       n.NextCommTime,
		MaxMessages:    n.MaxMessages,
	}
}

// NaiveAdvance moves the next contact forward by whole comm intervals until
// it lies after now, without talking to the node.
func (n *Node) NaiveAdvance(now uint32, fallbackInterval uint32) {
	interval := n.CommInterval
	if interval == 0 {
		interval = fallbackInterval
	}
	if interval == 0 {
		interval = 1
	}
	for n.NextCommTime <= now {
		n.NextCommTime += interval
	}
	n.Errors++
}

// IsLost reports whether the node was configured under another global comm
// interval than the one in force.
func (n Node) IsLost(commInterval uint32) bool {
	return n.CommInterval != commInterval
}
