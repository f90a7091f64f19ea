// Package bus implements the inter-agent message bus: bounded
// per-agent mailboxes with FIFO delivery per (sender, recipient) pair,
// and a rule-based router that picks a target agent for an inbound
// request.
package bus

// Payload is the closed set of envelope payload variants.
type Payload interface {
	isPayload()
}

// TaskRequest asks the recipient to perform described work.
type TaskRequest struct {
	Description string
	Args        map[string]string
}

func (TaskRequest) isPayload() {}

// TaskResult reports the outcome of a previously requested task.
type TaskResult struct {
	Success bool
	Output  string
}

func (TaskResult) isPayload() {}

// FactShare pushes a key/value fact to the recipient's attention.
type FactShare struct {
	Key   string
	Value string
}

func (FactShare) isPayload() {}

// CapabilityQuery asks whether the recipient supports a named
// capability.
type CapabilityQuery struct {
	Name string
}

func (CapabilityQuery) isPayload() {}

// CapabilityResponse answers a CapabilityQuery.
type CapabilityResponse struct {
	Supported bool
}

func (CapabilityResponse) isPayload() {}

// Envelope is one message on the bus.
type Envelope struct {
	ID            uint64
	Sender        string
	Recipient     string
	Payload       Payload
	CorrelationID uint64 // 0 means unset; otherwise must name a previously-sent envelope id
	Priority      int
}
