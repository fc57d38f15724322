// Package ticket defines the ITSM boundary. The engine only ever creates,
// comments on, and closes tickets; it treats every call as potentially
// failing and never assumes a specific wire format beyond these contracts.
package ticket

import "context"

// Request carries the fields for a new ticket. Systems ignore fields they
// have no concept for.
type Request struct {
	Summary         string
	Description     string
	Priority        string
	Urgency         string
	Impact          string
	Category        string
	AssignmentGroup string
}

// Created identifies a ticket in its home system. TicketID is the system's
// opaque key (issue key, sys_id); TicketNumber is the human-facing number.
type Created struct {
	TicketID     string
	TicketNumber string
	System       string
}

// Writer is one configured ticket system.
type Writer interface {
	// System names the backing system ("jira", "servicenow").
	System() string

	// IsConfigured reports whether the integration has credentials. Callers
	// check this before every use; unconfigured systems route to a
	// "skipped, no channel" outcome, never an error.
	IsConfigured() bool

	// Create opens a ticket.
	Create(ctx context.Context, req Request) (*Created, error)

	// AddComment appends a comment or work note.
	AddComment(ctx context.Context, ticketID, text string) error

	// Close resolves and closes the ticket. The message explains a false
	// result; remote failures come back as (false, message), not errors.
	Close(ctx context.Context, ticketID string) (bool, string)
}

// FirstConfigured returns the first writer reporting configuration, nil when
// none is usable.
func FirstConfigured(writers ...Writer) Writer {
	for _, w := range writers {
		if w != nil && w.IsConfigured() {
			return w
		}
	}
	return nil
}

// BySystem returns the writer for a system name, nil when absent.
func BySystem(system string, writers ...Writer) Writer {
	for _, w := range writers {
		if w != nil && w.System() == system {
			return w
		}
	}
	return nil
}
