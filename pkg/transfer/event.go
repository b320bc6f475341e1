package transfer

// EventType is the lifecycle step a transfer [Event] reports.
type EventType int

const (
	Initiated EventType = iota
	Started
	Progressed
	Corrupted
	Succeeded
	Failed
)

var eventNames = [...]string{"initiated", "started", "progressed", "corrupted", "succeeded", "failed"}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[t]
}

// RequestType tells downloads, existence checks and uploads apart.
type RequestType int

const (
	Get RequestType = iota
	GetExistence
	Put
)

func (r RequestType) String() string {
	switch r {
	case Get:
		return "get"
	case GetExistence:
		return "get-existence"
	case Put:
		return "put"
	}
	return "unknown"
}

// Event reports progress of one transfer.
type Event struct {
	Type             EventType
	RequestType      RequestType
	Resource         Resource
	TransferredBytes int64
	// DataBuffer holds the bytes of the latest chunk for Progressed events.
	// It is only valid for the duration of the callback.
	DataBuffer []byte
	Err        error
}
