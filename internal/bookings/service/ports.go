package service

import (
	"context"

	"labslot/pkg/model"
)

// Dispatcher delivers notifications and audit records. Calls return at once;
// delivery failures are the dispatcher's to log and never reach the caller.
type Dispatcher interface {
	Notify(ctx context.Context, n model.Notification)
	Audit(ctx context.Context, rec model.AuditRecord)
}

// RecipientResolver returns the users who should hear about operational events
// on a lab's resources.
type RecipientResolver interface {
	PrivilegedRecipientsFor(ctx context.Context, labID string) ([]string, error)
}
