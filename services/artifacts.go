package services

import "ticket-settlement/models"

// ArtifactRenderer produces the printable attachment for an issued ticket.
// Rendering (QR codes, PDF layout) is pluggable; settlement only moves the
// bytes into the ticket email.
type ArtifactRenderer interface {
	RenderTicket(eventName string, ticket models.Ticket) (filename string, content []byte, err error)
}
