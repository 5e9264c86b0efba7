package domain

import (
	"fmt"
	"time"
)

type LifecycleState string

const (
	StateProcessing LifecycleState = "processing"
	StateReady      LifecycleState = "ready"
	StateFailed     LifecycleState = "failed"
)

func (s LifecycleState) IsTerminal() bool {
	return s == StateReady || s == StateFailed
}

func (s LifecycleState) Valid() bool {
	return s == StateProcessing || s == StateReady || s == StateFailed
}

type SensitivityStatus string

const (
	SensitivityPending SensitivityStatus = "pending"
	SensitivitySafe    SensitivityStatus = "safe"
	SensitivityFlagged SensitivityStatus = "flagged"
)

// Classification is the content-sensitivity verdict written at the terminal
// transition. Status stays pending for as long as the object is processing.
type Classification struct {
	Status SensitivityStatus `json:"status"`
	Reason string            `json:"reason,omitempty"`
	Score  float64           `json:"score"`
}

func PendingClassification() Classification {
	return Classification{Status: SensitivityPending}
}

const DefaultCategory = "Uncategorized"

type MediaObject struct {
	ID          string `json:"id"`
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`

	ObjectRef string `json:"objectRef"` // object store reference
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
	SizeBytes int64  `json:"sizeBytes"`
	MimeType  string `json:"mimeType,omitempty"`

	LifecycleState  LifecycleState `json:"lifecycleState"`
	ProgressPercent int            `json:"progressPercent"`
	Classification  Classification `json:"classification"`
	DurationSeconds *float64       `json:"durationSeconds,omitempty"` // nil when metadata was unavailable

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewMediaObject returns a record in its initial processing state.
func NewMediaObject(id, ownerID, title string, now time.Time) *MediaObject {
	return &MediaObject{
		ID:             id,
		OwnerID:        ownerID,
		Title:          title,
		Category:       DefaultCategory,
		LifecycleState: StateProcessing,
		Classification: PendingClassification(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (m *MediaObject) IsProcessing() bool {
	return m.LifecycleState == StateProcessing
}

func (m *MediaObject) IsOwnedBy(userID string) bool {
	return userID != "" && m.OwnerID == userID
}

// AdvanceProgress moves progress forward. Progress never decreases and only
// changes while processing.
func (m *MediaObject) AdvanceProgress(percent int) error {
	if !m.IsProcessing() {
		return fmt.Errorf("cannot advance progress: current state is %s, expected %s", m.LifecycleState, StateProcessing)
	}
	if percent < m.ProgressPercent {
		return fmt.Errorf("cannot move progress backwards from %d to %d", m.ProgressPercent, percent)
	}
	if percent > 100 {
		percent = 100
	}
	m.ProgressPercent = percent
	return nil
}

// MarkReady transitions processing -> ready with the final verdict.
func (m *MediaObject) MarkReady(c Classification) error {
	if !m.IsProcessing() {
		return fmt.Errorf("cannot mark object ready: current state is %s, expected %s", m.LifecycleState, StateProcessing)
	}
	if c.Status == SensitivityPending {
		return fmt.Errorf("cannot mark object ready with a pending classification")
	}

	m.LifecycleState = StateReady
	m.ProgressPercent = 100
	m.Classification = c
	return nil
}

// MarkFailed transitions processing -> failed. Progress keeps its last value.
func (m *MediaObject) MarkFailed() error {
	if !m.IsProcessing() {
		return fmt.Errorf("cannot mark object failed: current state is %s, expected %s", m.LifecycleState, StateProcessing)
	}
	m.LifecycleState = StateFailed
	return nil
}

// DeepCopy creates a deep copy of the media object
func (m *MediaObject) DeepCopy() *MediaObject {
	if m == nil {
		return nil
	}

	cp := *m
	if m.DurationSeconds != nil {
		d := *m.DurationSeconds
		cp.DurationSeconds = &d
	}
	return &cp
}
