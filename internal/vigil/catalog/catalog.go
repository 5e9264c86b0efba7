package catalog

import (
	"context"
	"time"

	"vigilstream/internal/vigil/domain"
)

// Catalog is the durable record store for media objects. Missing records
// are reported with errors.ErrObjectNotFound.
type Catalog interface {
	// Create stores a new record. An existing id yields errors.ErrObjectExists.
	Create(ctx context.Context, obj *domain.MediaObject) error
	// Get returns a copy of the record.
	Get(ctx context.Context, id string) (*domain.MediaObject, error)
	// Update applies the non-nil fields of patch. Last writer wins per field.
	Update(ctx context.Context, id string, patch Patch) error
	Delete(ctx context.Context, id string) error
	// List returns matching records, newest first.
	List(ctx context.Context, filter Filter) ([]*domain.MediaObject, error)
	Close() error
}

// Patch is the set of pipeline-owned fields. Only the processing job writes
// lifecycle state, progress and classification.
type Patch struct {
	LifecycleState  *domain.LifecycleState
	ProgressPercent *int
	Classification  *domain.Classification
	DurationSeconds *float64
}

func (p Patch) IsEmpty() bool {
	return p.LifecycleState == nil && p.ProgressPercent == nil && p.Classification == nil && p.DurationSeconds == nil
}

// Apply writes the patch onto obj and stamps UpdatedAt.
func (p Patch) Apply(obj *domain.MediaObject, now time.Time) {
	if p.LifecycleState != nil {
		obj.LifecycleState = *p.LifecycleState
	}
	if p.ProgressPercent != nil {
		obj.ProgressPercent = *p.ProgressPercent
	}
	if p.Classification != nil {
		obj.Classification = *p.Classification
	}
	if p.DurationSeconds != nil {
		d := *p.DurationSeconds
		obj.DurationSeconds = &d
	}
	obj.UpdatedAt = now
}

// ProgressPatch persists a checkpoint.
func ProgressPatch(percent int) Patch {
	return Patch{ProgressPercent: &percent}
}

// DurationPatch persists extracted metadata.
func DurationPatch(seconds float64) Patch {
	return Patch{DurationSeconds: &seconds}
}

// TerminalPatch persists the final state of obj.
func TerminalPatch(obj *domain.MediaObject) Patch {
	state := obj.LifecycleState
	progress := obj.ProgressPercent
	c := obj.Classification
	return Patch{LifecycleState: &state, ProgressPercent: &progress, Classification: &c}
}

type Filter struct {
	SafeOnly bool
	State    domain.LifecycleState
	Category string
	OwnerID  string
}

func (f Filter) Matches(obj *domain.MediaObject) bool {
	if f.SafeOnly && obj.Classification.Status != domain.SensitivitySafe {
		return false
	}
	if f.State != "" && obj.LifecycleState != f.State {
		return false
	}
	if f.Category != "" && obj.Category != f.Category {
		return false
	}
	if f.OwnerID != "" && obj.OwnerID != f.OwnerID {
		return false
	}
	return true
}

// Users stores role assignments for the admin role-change flow.
type Users interface {
	Put(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id string) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	// SetRole yields errors.ErrUserNotFound for unknown ids.
	SetRole(ctx context.Context, id string, role domain.Role) (domain.User, error)
}
