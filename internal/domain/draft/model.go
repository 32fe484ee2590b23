package draft

import (
	"encoding/json"
	"time"
)

// Slot is one persisted draft. The key is the wizard's draft key: a random
// uuid for a new report, the incident id for an edit, so re-opening the same
// incident lands on the same slot.
type Slot struct {
	Key      string          `json:"key"`
	Snapshot json.RawMessage `json:"snapshot"`
	Seq      int64           `json:"seq"`
	SavedAt  time.Time       `json:"saved_at"`
}
