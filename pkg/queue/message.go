package queue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-central/pkg/enums"
)

const (
	fieldJobID        = "job_id"
	fieldKind         = "kind"
	fieldProductID    = "product_id"
	fieldListingID    = "listing_id"
	fieldAction       = "action"
	fieldTargetStatus = "target_status"
	fieldReason       = "reason"
	fieldSupplierID   = "supplier_id"
	fieldSKU          = "sku"
	fieldUserID       = "user_id"
)

// Message is one job as carried on the stream. EntryID is set on delivery.
type Message struct {
	EntryID      string
	JobID        uuid.UUID
	Kind         enums.JobKind
	ProductID    *uuid.UUID
	ListingID    *uuid.UUID
	Action       string
	TargetStatus enums.ListingStatus
	Reason       string
	SupplierID   *uuid.UUID
	SKU          string
	UserID       *uuid.UUID
}

// Values flattens the message into stream fields. Empty fields are omitted.
func (m Message) Values() map[string]string {
	values := map[string]string{
		fieldJobID: m.JobID.String(),
		fieldKind:  m.Kind.String(),
	}
	if m.ProductID != nil {
		values[fieldProductID] = m.ProductID.String()
	}
	if m.ListingID != nil {
		values[fieldListingID] = m.ListingID.String()
	}
	if m.Action != "" {
		values[fieldAction] = m.Action
	}
	if m.TargetStatus != "" {
		values[fieldTargetStatus] = m.TargetStatus.String()
	}
	if m.Reason != "" {
		values[fieldReason] = m.Reason
	}
	if m.SupplierID != nil {
		values[fieldSupplierID] = m.SupplierID.String()
	}
	if m.SKU != "" {
		values[fieldSKU] = m.SKU
	}
	if m.UserID != nil {
		values[fieldUserID] = m.UserID.String()
	}
	return values
}

// Decode rebuilds a Message from a stream entry.
func Decode(entryID string, values map[string]string) (Message, error) {
	msg := Message{EntryID: entryID}

	jobID, err := uuid.Parse(values[fieldJobID])
	if err != nil {
		return Message{}, fmt.Errorf("entry %s: invalid job_id: %w", entryID, err)
	}
	msg.JobID = jobID

	kind, err := enums.ParseJobKind(values[fieldKind])
	if err != nil {
		return Message{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	msg.Kind = kind

	if msg.ProductID, err = optionalUUID(values, fieldProductID); err != nil {
		return Message{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	if msg.ListingID, err = optionalUUID(values, fieldListingID); err != nil {
		return Message{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	if raw := values[fieldTargetStatus]; raw != "" {
		status, err := enums.ParseListingStatus(raw)
		if err != nil {
			return Message{}, fmt.Errorf("entry %s: %w", entryID, err)
		}
		msg.TargetStatus = status
	}
	if msg.SupplierID, err = optionalUUID(values, fieldSupplierID); err != nil {
		return Message{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	if msg.UserID, err = optionalUUID(values, fieldUserID); err != nil {
		return Message{}, fmt.Errorf("entry %s: %w", entryID, err)
	}
	msg.Action = values[fieldAction]
	msg.Reason = values[fieldReason]
	msg.SKU = values[fieldSKU]
	return msg, nil
}

func optionalUUID(values map[string]string, key string) (*uuid.UUID, error) {
	raw, ok := values[key]
	if !ok || raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &id, nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering. The consumer acknowledges such entries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
