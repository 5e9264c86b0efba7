package mappers

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/domain"
)

const timeFormat = time.RFC3339Nano

func classificationMap(c domain.Classification) map[string]any {
	return map[string]any{
		"status": string(c.Status),
		"reason": c.Reason,
		"score":  c.Score,
	}
}

// DomainToProtobuf converts a media object to a protobuf Struct
func DomainToProtobuf(obj *domain.MediaObject) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":              obj.ID,
		"ownerId":         obj.OwnerID,
		"title":           obj.Title,
		"description":     obj.Description,
		"category":        obj.Category,
		"objectRef":       obj.ObjectRef,
		"url":             obj.URL,
		"filename":        obj.Filename,
		"sizeBytes":       obj.SizeBytes,
		"mimeType":        obj.MimeType,
		"lifecycleState":  string(obj.LifecycleState),
		"progressPercent": obj.ProgressPercent,
		"classification":  classificationMap(obj.Classification),
		"createdAt":       obj.CreatedAt.Format(timeFormat),
		"updatedAt":       obj.UpdatedAt.Format(timeFormat),
	}
	if obj.DurationSeconds != nil {
		fields["durationSeconds"] = *obj.DurationSeconds
	}
	return structpb.NewStruct(fields)
}

// DomainListToProtobuf converts media objects to a protobuf ListValue
func DomainListToProtobuf(objs []*domain.MediaObject) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(objs))}
	for _, obj := range objs {
		s, err := DomainToProtobuf(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to map object %s: %w", obj.ID, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return list, nil
}

// ProtobufToDomain converts a protobuf Struct back to a media object
func ProtobufToDomain(s *structpb.Struct) (*domain.MediaObject, error) {
	f := s.GetFields()
	obj := &domain.MediaObject{
		ID:              str(f, "id"),
		OwnerID:         str(f, "ownerId"),
		Title:           str(f, "title"),
		Description:     str(f, "description"),
		Category:        str(f, "category"),
		ObjectRef:       str(f, "objectRef"),
		URL:             str(f, "url"),
		Filename:        str(f, "filename"),
		SizeBytes:       int64(num(f, "sizeBytes")),
		MimeType:        str(f, "mimeType"),
		LifecycleState:  domain.LifecycleState(str(f, "lifecycleState")),
		ProgressPercent: int(num(f, "progressPercent")),
		Classification:  classificationFrom(f["classification"]),
	}
	if v, ok := f["durationSeconds"]; ok {
		d := v.GetNumberValue()
		obj.DurationSeconds = &d
	}

	var err error
	if obj.CreatedAt, err = parseTime(f, "createdAt"); err != nil {
		return nil, err
	}
	if obj.UpdatedAt, err = parseTime(f, "updatedAt"); err != nil {
		return nil, err
	}
	return obj, nil
}

// EventToProtobuf converts a progress event to a protobuf Struct
func EventToProtobuf(ev domain.Event) (*structpb.Struct, error) {
	fields := map[string]any{
		"objectId":        ev.ObjectID,
		"progressPercent": ev.ProgressPercent,
		"lifecycleState":  string(ev.LifecycleState),
		"message":         ev.Message,
		"timestamp":       ev.Timestamp.Format(timeFormat),
	}
	if ev.Classification != nil {
		fields["classification"] = classificationMap(*ev.Classification)
	}
	if ev.Deleted {
		fields["deleted"] = true
	}
	return structpb.NewStruct(fields)
}

// ProtobufToEvent converts a protobuf Struct back to a progress event
func ProtobufToEvent(s *structpb.Struct) (domain.Event, error) {
	f := s.GetFields()
	ev := domain.Event{
		ObjectID:        str(f, "objectId"),
		ProgressPercent: int(num(f, "progressPercent")),
		LifecycleState:  domain.LifecycleState(str(f, "lifecycleState")),
		Message:         str(f, "message"),
		Deleted:         f["deleted"].GetBoolValue(),
	}
	if v, ok := f["classification"]; ok {
		c := classificationFrom(v)
		ev.Classification = &c
	}

	ts, err := parseTime(f, "timestamp")
	if err != nil {
		return domain.Event{}, err
	}
	ev.Timestamp = ts
	return ev, nil
}

// FilterToProtobuf converts a list filter to a protobuf Struct
func FilterToProtobuf(filter catalog.Filter) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"safeOnly": structpb.NewBoolValue(filter.SafeOnly),
		"state":    structpb.NewStringValue(string(filter.State)),
		"category": structpb.NewStringValue(filter.Category),
		"ownerId":  structpb.NewStringValue(filter.OwnerID),
	}}
}

// ProtobufToFilter converts a protobuf Struct to a list filter. A nil
// struct is the empty filter.
func ProtobufToFilter(s *structpb.Struct) catalog.Filter {
	f := s.GetFields()
	return catalog.Filter{
		SafeOnly: f["safeOnly"].GetBoolValue(),
		State:    domain.LifecycleState(str(f, "state")),
		Category: str(f, "category"),
		OwnerID:  str(f, "ownerId"),
	}
}

func classificationFrom(v *structpb.Value) domain.Classification {
	f := v.GetStructValue().GetFields()
	return domain.Classification{
		Status: domain.SensitivityStatus(str(f, "status")),
		Reason: str(f, "reason"),
		Score:  num(f, "score"),
	}
}

func str(f map[string]*structpb.Value, key string) string {
	return f[key].GetStringValue()
}

func num(f map[string]*structpb.Value, key string) float64 {
	return f[key].GetNumberValue()
}

func parseTime(f map[string]*structpb.Value, key string) (time.Time, error) {
	raw := str(f, key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeFormat, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return t, nil
}
