package incident

import "time"

// ParentSelf is the parent_incident_id self-marker: an incident carrying it
// is a parent (master) aggregating a cluster of related incidents.
const ParentSelf = "SELF"

// Status tracks whether an incident is still active.
type Status string

const (
	// StatusOpen means the incident is active.
	StatusOpen Status = "open"

	// StatusClosed means the incident has been closed out.
	StatusClosed Status = "closed"
)

// Incident is the orchestrator's record of one detected problem. Created by
// the monitor pipeline, linked by the correlator, stamped by the ticket
// writer, closed by the closer. Never deleted.
type Incident struct {
	ID                 string    `json:"incident_id"`
	Service            string    `json:"service"`
	Severity           Severity  `json:"severity"`
	Summary            string    `json:"summary"`
	CreatedAt          time.Time `json:"created_at"`
	Status             Status    `json:"status"`
	TicketID           string    `json:"ticket_id,omitempty"`
	TicketSystem       string    `json:"ticket_system,omitempty"`
	TicketNumber       string    `json:"ticket_number,omitempty"`
	ParentIncidentID   string    `json:"parent_incident_id,omitempty"`
	ParentTicketNumber string    `json:"parent_ticket_number,omitempty"`

	// Context holds evidence gathered at creation time (metric snapshot,
	// log lines). Informational only; nothing in the engine keys off it.
	Context map[string]string `json:"context,omitempty"`
}

// IsParent reports whether the incident is a master ticket.
func (i *Incident) IsParent() bool {
	return i.ParentIncidentID == ParentSelf
}

// IsChild reports whether the incident is linked under another incident.
func (i *Incident) IsChild() bool {
	return i.ParentIncidentID != "" && i.ParentIncidentID != ParentSelf
}

// Closed reports whether the incident has reached a terminal status. The
// "resolved" spelling appears in rows imported from external systems and is
// treated the same as closed.
func (i *Incident) Closed() bool {
	return i.Status == StatusClosed || string(i.Status) == "resolved"
}
