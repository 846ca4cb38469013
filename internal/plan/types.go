package plan

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Plan is a practice plan: a named outline document plus a revision counter
// for optimistic concurrency. The document is stored as-is in JSONB.
type Plan struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Document  json.RawMessage `json:"document"`
	Revision  int64           `json:"revision"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreatePlanRequest is the payload for creating a plan.
type CreatePlanRequest struct {
	Name     string          `json:"name"`
	Document json.RawMessage `json:"document"`
}

// UpdatePlanRequest carries the full replacement document and the revision
// the caller last read. A mismatch means another writer got there first.
type UpdatePlanRequest struct {
	Name     string          `json:"name"`
	Document json.RawMessage `json:"document"`
	Revision int64           `json:"revision"`
}
