package mappers

import (
	"testing"
	"time"

	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/domain"
)

func TestDomainToProtobuf(t *testing.T) {
	created := time.Date(2026, 2, 3, 4, 5, 6, 700, time.UTC)
	duration := 61.5

	obj := domain.NewMediaObject("obj-1", "alice", "Company Picnic", created)
	obj.SizeBytes = 1 << 20
	obj.ProgressPercent = 100
	obj.LifecycleState = domain.StateReady
	obj.Classification = domain.Classification{Status: domain.SensitivitySafe, Reason: "Content appears clean.", Score: 0.95}
	obj.DurationSeconds = &duration

	s, err := DomainToProtobuf(obj)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	f := s.GetFields()
	if f["id"].GetStringValue() != "obj-1" {
		t.Errorf("Expected id obj-1, got %v", f["id"])
	}
	if f["lifecycleState"].GetStringValue() != "ready" {
		t.Errorf("Expected state ready, got %v", f["lifecycleState"])
	}
	if f["classification"].GetStructValue().GetFields()["status"].GetStringValue() != "safe" {
		t.Errorf("Expected classification safe, got %v", f["classification"])
	}

	back, err := ProtobufToDomain(s)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if back.SizeBytes != obj.SizeBytes {
		t.Errorf("Expected size %d, got %d", obj.SizeBytes, back.SizeBytes)
	}
	if back.DurationSeconds == nil || *back.DurationSeconds != duration {
		t.Errorf("Expected duration %v, got %v", duration, back.DurationSeconds)
	}
	if !back.CreatedAt.Equal(created) {
		t.Errorf("Expected createdAt %v, got %v", created, back.CreatedAt)
	}
	if back.Classification != obj.Classification {
		t.Errorf("Expected classification %+v, got %+v", obj.Classification, back.Classification)
	}
}

func TestDomainToProtobuf_NoDuration(t *testing.T) {
	obj := domain.NewMediaObject("obj-2", "bob", "clip", time.Now())

	s, err := DomainToProtobuf(obj)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := s.GetFields()["durationSeconds"]; ok {
		t.Error("Expected durationSeconds to be absent")
	}

	back, err := ProtobufToDomain(s)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if back.DurationSeconds != nil {
		t.Errorf("Expected nil duration, got %v", *back.DurationSeconds)
	}
}

func TestEventToProtobuf(t *testing.T) {
	progress := domain.Event{ObjectID: "x", ProgressPercent: 35, LifecycleState: domain.StateProcessing, Message: "Processing...", Timestamp: time.Now().UTC()}

	s, err := EventToProtobuf(progress)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, ok := s.GetFields()["classification"]; ok {
		t.Error("Expected no classification on a progress event")
	}

	c := domain.Classification{Status: domain.SensitivityFlagged, Score: 0.1}
	terminal := domain.Event{ObjectID: "x", ProgressPercent: 100, LifecycleState: domain.StateReady, Classification: &c, Timestamp: time.Now().UTC()}
	s, err = EventToProtobuf(terminal)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	back, err := ProtobufToEvent(s)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !back.IsTerminal() {
		t.Error("Expected terminal event")
	}
	if back.Classification == nil || back.Classification.Status != domain.SensitivityFlagged {
		t.Errorf("Expected flagged classification, got %+v", back.Classification)
	}
	if back.ProgressPercent != 100 {
		t.Errorf("Expected progress 100, got %d", back.ProgressPercent)
	}
}

func TestProtobufToFilter(t *testing.T) {
	want := catalog.Filter{SafeOnly: true, State: domain.StateReady, Category: "News", OwnerID: "alice"}
	if got := ProtobufToFilter(FilterToProtobuf(want)); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if got := ProtobufToFilter(nil); got != (catalog.Filter{}) {
		t.Errorf("Expected empty filter, got %+v", got)
	}
}

func TestProtobufToEvent_MissingTimestamp(t *testing.T) {
	s, _ := EventToProtobuf(domain.Event{ObjectID: "x"})
	s.Fields["timestamp"] = nil
	if _, err := ProtobufToEvent(s); err != nil {
		t.Errorf("Expected missing timestamp to be tolerated, got %v", err)
	}
}
