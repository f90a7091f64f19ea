// Package isolate implements the Agent Isolation & Spawner: a map from
// agent id to AgentContext plus the parent relation, with depth,
// concurrency, and per-parent children limits and atomic cascade
// termination.
package isolate

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw-core/internal/guardian"
	"github.com/nextlevelbuilder/goclaw-core/internal/memory"
)

var log = slog.With("component", "isolate")

// Status is an agent's lifecycle state.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusWaiting
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusWaiting:
		return "waiting"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// AgentContext is one agent's private state. No two contexts share a
// MemorySystem or Guardian.
type AgentContext struct {
	ID        string
	Name      string
	ParentID  string // empty for top-level agents
	Depth     int
	Workspace string // optional; empty means no workspace dependency

	ShortTerm *memory.ShortTerm
	LongTerm  *memory.LongTerm
	Guardian  *guardian.Guardian

	mu     sync.Mutex
	status Status
}

// Status returns the agent's current lifecycle status.
func (a *AgentContext) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *AgentContext) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// Limits bounds the Spawner's acceptance of new agents.
type Limits struct {
	MaxDepth            int // 0 means unlimited
	MaxConcurrent       int // 0 means unlimited
	MaxChildrenPerAgent int // 0 means unlimited
	ShortTermWindow     int
}

// ErrUnknownParent is returned by SpawnChild when parent is gone.
type ErrUnknownParent struct{ ParentID string }

func (e *ErrUnknownParent) Error() string {
	return fmt.Sprintf("isolate: unknown parent %q", e.ParentID)
}

// ErrDepthExceeded is returned when spawning would exceed MaxDepth.
type ErrDepthExceeded struct{ MaxDepth int }

func (e *ErrDepthExceeded) Error() string {
	return fmt.Sprintf("isolate: spawn would exceed max depth %d", e.MaxDepth)
}

// ErrConcurrencyExceeded is returned when MaxConcurrent live agents is
// already reached.
type ErrConcurrencyExceeded struct{ MaxConcurrent int }

func (e *ErrConcurrencyExceeded) Error() string {
	return fmt.Sprintf("isolate: max concurrent agents (%d) reached", e.MaxConcurrent)
}

// ErrTooManyChildren is returned when a parent already has
// MaxChildrenPerAgent live children.
type ErrTooManyChildren struct {
	ParentID      string
	MaxChildren   int
}

func (e *ErrTooManyChildren) Error() string {
	return fmt.Sprintf("isolate: parent %q already has max children (%d)", e.ParentID, e.MaxChildren)
}

// Terminator is notified when an agent is removed from the forest, so
// that collaborators keyed on agent id (the inter-agent bus's
// mailboxes, chiefly) can fail subsequent sends/receives for it rather
// than silently queuing to an agent that will never read them again.
type Terminator interface {
	Terminate(agentID string)
}

// Spawner owns the agent forest: every AgentContext and the parent
// relation between them.
type Spawner struct {
	mu             sync.RWMutex
	limits         Limits
	agents         map[string]*AgentContext
	children       map[string][]string // parentID -> child ids, live only
	guardianPolicy guardian.Policy
	auditSink      guardian.Sink
	terminator     Terminator
}

// SetTerminator wires t to receive a Terminate(agentID) call for every
// agent removed by a future Terminate call (including cascaded
// descendants). Optional: a Spawner with no terminator set simply skips
// this notification, which is how it behaves before this is called and
// in tests that don't need it.
func (s *Spawner) SetTerminator(t Terminator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminator = t
}

// New constructs a Spawner. guardianPolicy/auditSink are used to build
// each new agent's private Guardian.
func New(limits Limits, guardianPolicy guardian.Policy, auditSink guardian.Sink) *Spawner {
	return &Spawner{
		limits:         limits,
		agents:         make(map[string]*AgentContext),
		children:       make(map[string][]string),
		guardianPolicy: guardianPolicy,
		auditSink:      auditSink,
	}
}

// Spawn creates a new top-level agent.
func (s *Spawner) Spawn(name string) (*AgentContext, error) {
	return s.spawn(name, "", 0)
}

// SpawnChild creates a new agent whose parent is parentID, failing
// ErrUnknownParent if parentID is not a currently-live agent.
func (s *Spawner) SpawnChild(name, parentID string) (*AgentContext, error) {
	s.mu.RLock()
	parent, ok := s.agents[parentID]
	s.mu.RUnlock()
	if !ok {
		return nil, &ErrUnknownParent{ParentID: parentID}
	}
	return s.spawn(name, parentID, parent.Depth+1)
}

func (s *Spawner) spawn(name, parentID string, depth int) (*AgentContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limits.MaxDepth > 0 && depth > s.limits.MaxDepth {
		return nil, &ErrDepthExceeded{MaxDepth: s.limits.MaxDepth}
	}
	if s.limits.MaxConcurrent > 0 && len(s.agents) >= s.limits.MaxConcurrent {
		return nil, &ErrConcurrencyExceeded{MaxConcurrent: s.limits.MaxConcurrent}
	}
	if parentID != "" && s.limits.MaxChildrenPerAgent > 0 && len(s.children[parentID]) >= s.limits.MaxChildrenPerAgent {
		return nil, &ErrTooManyChildren{ParentID: parentID, MaxChildren: s.limits.MaxChildrenPerAgent}
	}

	ctx := &AgentContext{
		ID:        uuid.NewString(),
		Name:      name,
		ParentID:  parentID,
		Depth:     depth,
		ShortTerm: memory.NewShortTerm(s.limits.ShortTermWindow),
		LongTerm:  memory.NewLongTerm(),
		Guardian:  guardian.New(s.guardianPolicy, s.auditSink),
		status:    StatusIdle,
	}
	s.agents[ctx.ID] = ctx
	if parentID != "" {
		s.children[parentID] = append(s.children[parentID], ctx.ID)
	}
	return ctx, nil
}

// Get returns the agent context for id, if it is currently live.
func (s *Spawner) Get(id string) (*AgentContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.agents[id]
	return ctx, ok
}

// AgentCount returns the number of currently-live agents.
func (s *Spawner) AgentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// Terminate removes id and, transitively, all of its descendants,
// returning the total number removed. The removal is computed and
// applied while holding the Spawner's lock throughout, so the
// operation is atomic from an outside observer's view: no caller ever
// observes a partially-cascaded state.
func (s *Spawner) Terminate(id string) int {
	s.mu.Lock()

	toRemove := s.collectDescendants(id)
	if len(toRemove) == 0 {
		s.mu.Unlock()
		return 0
	}

	s.unlinkFromParent(id)
	for _, removedID := range toRemove {
		if ctx, ok := s.agents[removedID]; ok {
			ctx.setStatus(StatusTerminated)
		}
		delete(s.agents, removedID)
		delete(s.children, removedID)
	}
	terminator := s.terminator
	s.mu.Unlock()

	// Notified outside the lock: Terminator.Terminate (the bus) takes
	// its own lock, and cascading through potentially many descendants
	// should not hold the Spawner's lock for the duration.
	if terminator != nil {
		for _, removedID := range toRemove {
			terminator.Terminate(removedID)
		}
	}

	log.Info("agent terminated", "id", id, "removed", len(toRemove))
	return len(toRemove)
}

// collectDescendants returns id plus every transitive child, if id is
// currently live; an empty slice if id is unknown.
func (s *Spawner) collectDescendants(id string) []string {
	if _, ok := s.agents[id]; !ok {
		return nil
	}
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)
		queue = append(queue, s.children[cur]...)
	}
	return out
}

// unlinkFromParent removes id from its parent's children slice, prior
// to id itself being deleted from s.agents by the caller.
func (s *Spawner) unlinkFromParent(id string) {
	for parentID, kids := range s.children {
		for i, kid := range kids {
			if kid == id {
				s.children[parentID] = append(kids[:i], kids[i+1:]...)
				return
			}
		}
	}
}

