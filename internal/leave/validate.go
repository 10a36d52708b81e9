package leave

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/omriShneor/leave_extractor/internal/timeutil"
)

// Validate decodes parsed model output into leave events and enforces the
// record invariants. Unknown fields and wrong types are rejected; legacy
// day-part shapes and cosmetic inconsistencies are repaired.
func Validate(raw json.RawMessage) (*Extraction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrSchemaViolation)
	}

	var items []json.RawMessage
	single := false
	switch trimmed[0] {
	case '{':
		items = []json.RawMessage{trimmed}
		single = true
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: no events in output", ErrSchemaViolation)
		}
	default:
		return nil, fmt.Errorf("%w: expected a JSON object or array", ErrSchemaViolation)
	}

	events := make([]Event, 0, len(items))
	for i, item := range items {
		ev, err := decodeEvent(item)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrSchemaViolation, i, err)
		}
		if err := normalizeEvent(ev); err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", ErrSchemaViolation, i, err)
		}
		events = append(events, *ev)
	}

	return &Extraction{Events: events, Single: single}, nil
}

// requiredFields must be present in every record. early_departure and
// partially_unavailable default to false for models answering in the older
// flat schema.
var requiredFields = []string{"name", "late", "leave", "wfh", "start_date", "end_date", "reason"}

func decodeEvent(raw json.RawMessage) (*Event, error) {
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(fields))
	for key := range fields {
		present[strings.ToLower(key)] = true
	}
	var missing []string
	for _, key := range requiredFields {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	var ev Event
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func normalizeEvent(ev *Event) error {
	ev.Name = nullIfBlank(ev.Name)
	ev.Reason = nullIfBlank(ev.Reason)
	ev.StartDate = nullIfBlank(ev.StartDate)
	ev.EndDate = nullIfBlank(ev.EndDate)

	ev.Leave.normalize()
	ev.WFH.normalize()
	if ev.Leave.overlaps(ev.WFH) {
		return fmt.Errorf("leave and wfh claim the same part of the day")
	}
	if !ev.hasStatus() {
		return fmt.Errorf("no late, early departure, unavailability, leave or wfh status set")
	}

	if ev.StartDate != nil {
		if _, err := timeutil.ParseDate(*ev.StartDate); err != nil {
			return fmt.Errorf("start_date: %v", err)
		}
	}
	if ev.EndDate == nil {
		return nil
	}
	if ev.StartDate == nil {
		return fmt.Errorf("end_date set without start_date")
	}
	if _, err := timeutil.ParseDate(*ev.EndDate); err != nil {
		return fmt.Errorf("end_date: %v", err)
	}

	// ISO dates compare lexically.
	switch strings.Compare(*ev.EndDate, *ev.StartDate) {
	case -1:
		return fmt.Errorf("end_date %s is before start_date %s", *ev.EndDate, *ev.StartDate)
	case 0:
		ev.EndDate = nil
	}
	return nil
}

func nullIfBlank(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
