package domain

import (
	"time"
)

// Campaign identifies one distribution request: a batch of outbound
// messages tied to a single source event (e.g. one assignment handout).
// Immutable once dispatch begins.
type Campaign struct {
	ID              string     `json:"id"` // Caller-supplied, e.g. an assignment id
	MessageTemplate string     `json:"message_template"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	RecipientIDs    []string   `json:"recipient_ids"`
}

// CampaignInfo carries campaign metadata used for template rendering.
// Resolved by the surrounding CRUD layer and passed in.
type CampaignInfo struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date,omitempty"`
}

// Recipient is one roster entry. Recipient storage is owned by the
// surrounding application; this subsystem only reads what it is handed.
type Recipient struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Destination  string            `json:"destination"` // Phone number
	TemplateVars map[string]string `json:"template_vars,omitempty"`
}

// Roster is a recipient set indexed by id.
type Roster map[string]Recipient

// NewRoster indexes recipients by id. Later entries win on duplicate ids.
func NewRoster(recipients []Recipient) Roster {
	roster := make(Roster, len(recipients))
	for _, r := range recipients {
		roster[r.ID] = r
	}
	return roster
}
