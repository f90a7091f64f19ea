package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

var log = slog.With("component", "bus")

var (
	errMailboxClosed = errors.New("bus: mailbox closed")
	errMailboxFull   = errors.New("bus: mailbox full")
)

// ErrMailboxFull is returned by Send when the recipient's mailbox is
// at capacity.
type ErrMailboxFull struct{ Recipient string }

func (e *ErrMailboxFull) Error() string {
	return fmt.Sprintf("bus: mailbox for %q is full", e.Recipient)
}

// ErrAgentGone is returned to receivers awaiting an envelope when the
// agent's mailbox has been closed by Terminate.
type ErrAgentGone struct{ AgentID string }

func (e *ErrAgentGone) Error() string { return fmt.Sprintf("bus: agent %q is gone", e.AgentID) }

// mailbox is a bounded FIFO queue with a notification channel for
// async receivers. Per-(sender,recipient) FIFO is automatic: all
// sends to one recipient append to a single slice in arrival order,
// regardless of sender — so each sender's own messages stay ordered,
// and two senders' messages interleave only at send-time granularity,
// never reordering within a sender.
type mailbox struct {
	mu       sync.Mutex
	capacity int
	queue    []Envelope
	notify   chan struct{}
	closed   bool
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{capacity: capacity, notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(e Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMailboxClosed
	}
	if m.capacity > 0 && len(m.queue) >= m.capacity {
		return errMailboxFull
	}
	m.queue = append(m.queue, e)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *mailbox) pop() (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Envelope{}, false
	}
	head := m.queue[0]
	m.queue = m.queue[1:]
	return head, true
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Bus is a map from agent id to a bounded mailbox.
type Bus struct {
	mu          sync.RWMutex
	mailboxes   map[string]*mailbox
	defaultCap  int
	nextEnvelop uint64
}

// New constructs a Bus whose mailboxes default to defaultCapacity
// (0 means unbounded).
func New(defaultCapacity int) *Bus {
	return &Bus{mailboxes: make(map[string]*mailbox), defaultCap: defaultCapacity}
}

// Register creates a mailbox for agentID if one does not already
// exist. Send and Receive implicitly register the recipient's
// mailbox on first use, so calling Register explicitly is only needed
// to reserve a mailbox before any message arrives.
func (b *Bus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ensureMailboxLocked(agentID)
}

func (b *Bus) ensureMailboxLocked(agentID string) *mailbox {
	mb, ok := b.mailboxes[agentID]
	if !ok {
		mb = newMailbox(b.defaultCap)
		b.mailboxes[agentID] = mb
	}
	return mb
}

// Send enqueues an envelope for its recipient, assigning it a fresh
// monotonic envelope id. It fails with ErrMailboxFull if the
// recipient's mailbox is at capacity, or ErrAgentGone if the
// recipient has been terminated.
func (b *Bus) Send(sender, recipient string, payload Payload, correlationID uint64, priority int) (Envelope, error) {
	b.mu.Lock()
	mb := b.ensureMailboxLocked(recipient)
	b.mu.Unlock()

	env := Envelope{
		ID:            atomic.AddUint64(&b.nextEnvelop, 1),
		Sender:        sender,
		Recipient:     recipient,
		Payload:       payload,
		CorrelationID: correlationID,
		Priority:      priority,
	}
	if err := mb.push(env); err != nil {
		if errors.Is(err, errMailboxFull) {
			return Envelope{}, &ErrMailboxFull{Recipient: recipient}
		}
		return Envelope{}, &ErrAgentGone{AgentID: recipient}
	}
	return env, nil
}

// Receive pops the head of recipient's mailbox, non-blocking. The
// second return value is false if the mailbox is currently empty.
func (b *Bus) Receive(recipient string) (Envelope, bool) {
	b.mu.Lock()
	mb := b.ensureMailboxLocked(recipient)
	b.mu.Unlock()
	return mb.pop()
}

// ReceiveAsync blocks until an envelope arrives for recipient, the
// agent is terminated (ErrAgentGone), or ctxDone closes (nil channel
// means no deadline).
func (b *Bus) ReceiveAsync(recipient string, ctxDone <-chan struct{}) (Envelope, error) {
	b.mu.Lock()
	mb := b.ensureMailboxLocked(recipient)
	b.mu.Unlock()

	for {
		if env, ok := mb.pop(); ok {
			return env, nil
		}
		mb.mu.Lock()
		closed := mb.closed
		mb.mu.Unlock()
		if closed {
			return Envelope{}, &ErrAgentGone{AgentID: recipient}
		}
		select {
		case <-mb.notify:
			continue
		case <-ctxDone:
			return Envelope{}, nil
		}
	}
}

// Terminate closes recipient's mailbox; any receiver awaiting it
// completes with ErrAgentGone.
func (b *Bus) Terminate(agentID string) {
	b.mu.Lock()
	mb, ok := b.mailboxes[agentID]
	b.mu.Unlock()
	if ok {
		mb.close()
		log.Debug("mailbox terminated", "agent_id", agentID)
	}
}
