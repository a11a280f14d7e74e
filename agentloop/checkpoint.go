package agentloop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentd-dev/agentd/taskstore"
)

// StepRecord captures one completed or failed step of a run, in execution
// order.
type StepRecord struct {
	Label     string    `json:"label"`
	Succeeded bool      `json:"succeeded"`
	Payload   string    `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Checkpoint is the durable progress record of a run. Steps are append-only
// and ordered; the same query always yields the same task id, so a rerun
// of an interrupted query finds its earlier progress.
type Checkpoint struct {
	TaskID    string       `json:"task_id"`
	Query     string       `json:"query"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Steps     []StepRecord `json:"steps"`

	mu sync.Mutex
}

// TaskID derives the deterministic task identifier for a query.
func TaskID(query string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(query)))
	return hex.EncodeToString(sum[:])[:8]
}

// NewCheckpoint creates a checkpoint for query with no steps.
func NewCheckpoint(query string) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		TaskID:    TaskID(query),
		Query:     query,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddStep appends a step record. Existing records are never modified.
func (c *Checkpoint) AddStep(label string, succeeded bool, payload, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	c.Steps = append(c.Steps, StepRecord{
		Label:     label,
		Succeeded: succeeded,
		Payload:   payload,
		Error:     errMsg,
		Timestamp: now,
	})
	c.UpdatedAt = now
}

// HasAnySuccess reports whether at least one step succeeded.
func (c *Checkpoint) HasAnySuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.Steps {
		if s.Succeeded {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the step records.
func (c *Checkpoint) Snapshot() []StepRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	steps := make([]StepRecord, len(c.Steps))
	copy(steps, c.Steps)
	return steps
}

// Save persists the checkpoint under its task id.
func (c *Checkpoint) Save(ctx context.Context, store taskstore.Store) error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := store.Save(ctx, c.TaskID, data); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", c.TaskID, err)
	}
	return nil
}

// LoadCheckpoint loads the checkpoint stored under taskID.
// taskstore.ErrNotFound passes through for callers that treat a missing
// checkpoint as a fresh start.
func LoadCheckpoint(ctx context.Context, store taskstore.Store, taskID string) (*Checkpoint, error) {
	data, err := store.Load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", taskID, err)
	}
	return &cp, nil
}
