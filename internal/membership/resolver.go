package membership

import (
	"context"
	"sort"

	apperrors "labslot/pkg/errors"
	"labslot/pkg/logger"
	"labslot/pkg/sanitizer"
)

const (
	UsersCollection       = "Users"
	MembershipsCollection = "Lab_memberships"
)

// Directory answers the two questions recipient resolution needs.
type Directory interface {
	// ActivePrivilegedMembers returns users with a privileged role whose
	// membership in labID is active.
	ActivePrivilegedMembers(ctx context.Context, labID string) ([]string, error)
	// PrivilegedUsers returns every user with a privileged role.
	PrivilegedUsers(ctx context.Context) ([]string, error)
}

// Resolver picks who hears about promotions on a lab's resources: the lab's
// active privileged members, or every privileged user when the lab has none.
type Resolver struct {
	dir Directory
	log *logger.Logger
}

func NewResolver(dir Directory, log *logger.Logger) *Resolver {
	return &Resolver{dir: dir, log: log}
}

func (r *Resolver) PrivilegedRecipientsFor(ctx context.Context, labID string) ([]string, error) {
	if labID != "" {
		members, err := r.dir.ActivePrivilegedMembers(ctx, labID)
		if err != nil {
			return nil, apperrors.Internal("failed to resolve lab members", err)
		}
		if ids := normalize(members); len(ids) > 0 {
			return ids, nil
		}
		r.log.Debug("lab has no active privileged members, falling back to all privileged users", "lab_id", labID)
	}

	users, err := r.dir.PrivilegedUsers(ctx)
	if err != nil {
		return nil, apperrors.Internal("failed to resolve privileged users", err)
	}
	return normalize(users), nil
}

func normalize(ids []string) []string {
	out := sanitizer.SanitizeSlice(ids, sanitizer.SanitizeIdentifier)
	sort.Strings(out)
	return out
}
