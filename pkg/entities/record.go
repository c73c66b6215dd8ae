package entities

// SensorValue is one reading carried in a DATA message.
type SensorValue struct {
	TypeTag     uint8   `json:"typeTag" yaml:"typeTag"`
	InstanceTag uint8   `json:"instanceTag" yaml:"instanceTag"`
	Value       float32 `json:"value" yaml:"value"`
}

type RecordFlags struct {
	NValues  uint8 `json:"nValues"`
	Uploaded bool  `json:"uploaded"`
}

// Record is one measurement entry in the log shared by the DATA path and the
// upload path.
type Record struct {
	ID        int64         `json:"-"`
	Source    Address       `json:"source"`
	Timestamp uint32        `json:"timestamp"`
	Flags     RecordFlags   `json:"flags"`
	Values    []SensorValue `json:"values"`
}

func NewRecord(source Address, timestamp uint32, values []SensorValue) Record {
	return Record{
		Source:    source,
		Timestamp: timestamp,
		Flags:     RecordFlags{NValues: uint8(len(values))},
		Values:    values,
	}
}
