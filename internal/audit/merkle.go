package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ocx/trustcore/internal/core"
)

// MerkleLog is an in-memory, tamper-evident audit sink. Each appended event
// becomes a leaf; the root hash commits to the full history, so any retro-
// active edit is detectable by comparing roots. Also maintains a root per
// agent for scoped audits.
type MerkleLog struct {
	mu         sync.Mutex
	leaves     []*merkleNode
	root       *merkleNode
	agentRoots map[core.AgentID]string
	events     []Event
}

type merkleNode struct {
	left  *merkleNode
	right *merkleNode
	hash  string
}

// NewMerkleLog creates an empty audit log.
func NewMerkleLog() *MerkleLog {
	return &MerkleLog{agentRoots: make(map[core.AgentID]string)}
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Append adds the event as a new leaf and recomputes the root.
func (l *MerkleLog) Append(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
	l.leaves = append(l.leaves, &merkleNode{hash: hashBytes(data)})
	l.recalculateRoot()
	l.agentRoots[event.AgentID] = l.root.hash
	return nil
}

// recalculateRoot rebuilds the tree bottom-up. O(n) per append is fine at
// audit-log volumes; switch to an incremental tree if that ever changes.
func (l *MerkleLog) recalculateRoot() {
	nodes := l.leaves
	for len(nodes) > 1 {
		var next []*merkleNode
		for i := 0; i < len(nodes); i += 2 {
			left := nodes[i]
			right := left
			if i+1 < len(nodes) {
				right = nodes[i+1]
			}
			next = append(next, &merkleNode{
				left:  left,
				right: right,
				hash:  hashBytes([]byte(left.hash + right.hash)),
			})
		}
		nodes = next
	}
	l.root = nodes[0]
}

// RootHash returns the current root commitment, or "" for an empty log.
func (l *MerkleLog) RootHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.root == nil {
		return ""
	}
	return l.root.hash
}

// AgentRoot returns the root hash as of the agent's last audit entry.
func (l *MerkleLog) AgentRoot(id core.AgentID) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.agentRoots[id]
}

// EventsFor returns the retained history for one agent, oldest first.
func (l *MerkleLog) EventsFor(id core.AgentID) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.AgentID == id {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of appended events.
func (l *MerkleLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
