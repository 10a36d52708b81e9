package leave

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DayParts flags which parts of a day a status covers.
type DayParts struct {
	FirstHalf  bool `json:"first_half"`
	SecondHalf bool `json:"second_half"`
	WholeDay   bool `json:"whole_day"`
}

// Any reports whether any part of the day is flagged.
func (d DayParts) Any() bool {
	return d.FirstHalf || d.SecondHalf || d.WholeDay
}

// normalize folds both halves into whole_day and clears halves under whole_day.
func (d *DayParts) normalize() {
	if d.FirstHalf && d.SecondHalf {
		d.WholeDay = true
	}
	if d.WholeDay {
		d.FirstHalf = false
		d.SecondHalf = false
	}
}

func (d DayParts) overlaps(o DayParts) bool {
	if !d.Any() || !o.Any() {
		return false
	}
	if d.WholeDay || o.WholeDay {
		return true
	}
	return (d.FirstHalf && o.FirstHalf) || (d.SecondHalf && o.SecondHalf)
}

// UnmarshalJSON accepts the structured object and the older flat forms a
// model may still produce: a boolean (whole day) or "First Half"/"Second Half".
func (d *DayParts) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)

	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*d = DayParts{}
		return nil

	case bytes.Equal(trimmed, []byte("true")), bytes.Equal(trimmed, []byte("false")):
		*d = DayParts{WholeDay: trimmed[0] == 't'}
		return nil

	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		parts, ok := dayPartFromString(s)
		if !ok {
			return fmt.Errorf("unknown day part %q", s)
		}
		*d = parts
		return nil
	}

	type plain DayParts
	var p plain
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*d = DayParts(p)
	return nil
}

func dayPartFromString(s string) (DayParts, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", " ", "-", " ").Replace(key)

	switch key {
	case "first half", "morning":
		return DayParts{FirstHalf: true}, true
	case "second half", "afternoon":
		return DayParts{SecondHalf: true}, true
	case "whole day", "full day", "true":
		return DayParts{WholeDay: true}, true
	case "", "none", "false":
		return DayParts{}, true
	}
	return DayParts{}, false
}

// Event is one person's status for one contiguous date range and day part.
type Event struct {
	Name                 *string  `json:"name"`
	Late                 bool     `json:"late"`
	EarlyDeparture       bool     `json:"early_departure"`
	PartiallyUnavailable bool     `json:"partially_unavailable"`
	Leave                DayParts `json:"leave"`
	WFH                  DayParts `json:"wfh"`
	StartDate            *string  `json:"start_date"`
	EndDate              *string  `json:"end_date"`
	Reason               *string  `json:"reason"`
}

func (e Event) hasStatus() bool {
	return e.Late || e.EarlyDeparture || e.PartiallyUnavailable || e.Leave.Any() || e.WFH.Any()
}

// Extraction is the structured result for one message. It serializes as a
// single object when the model answered with one object and as an array
// otherwise.
type Extraction struct {
	Events []Event
	Single bool
}

func (e Extraction) MarshalJSON() ([]byte, error) {
	if e.Single && len(e.Events) == 1 {
		return json.Marshal(e.Events[0])
	}
	events := e.Events
	if events == nil {
		events = []Event{}
	}
	return json.Marshal(events)
}
