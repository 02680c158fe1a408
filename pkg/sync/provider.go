package sync

import (
	"context"

	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// Provider is the source of the authoritative document listing.
type Provider interface {
	ListDocuments(ctx context.Context) ([]models.DocumentRecord, error)
}

// Report summarizes one refresh.
type Report struct {
	Remote         int // records in the listing
	Matched        int // nodes known locally and updated from the listing
	Added          int // nodes new to the local tree
	PendingLocal   int // local nodes absent from the listing, kept as pending
	Tagged         int // documents whose tags were read from front matter
	InvalidLedgers int // documents whose version ledger failed validation
}
