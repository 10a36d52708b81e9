package leave

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/omriShneor/leave_extractor/internal/timeutil"
	"gopkg.in/yaml.v3"
)

//go:embed examples.yaml
var examplesYAML []byte

// Example is a worked input/output pair shown to the model.
type Example struct {
	Input  string `yaml:"input"`
	Date   string `yaml:"date"`
	Output string `yaml:"output"`
}

// messageMarker introduces the caller's message at the end of the prompt.
const messageMarker = "Now, extract the information from the following message text: "

const promptText = `You are a chatbot that extracts useful information from leave messages. Today's date is {{.Today}}. Your task is to extract details about late arrivals, early departures, leaves, and work-from-home (WFH) requests from the text provided and convert the dates into the format YYYY-MM-DD using today as the reference date. The reference may be given according to months, weeks, or days. Output the extracted information in JSON format.

Instructions:

- Do NOT include any code or instructions for creating a parser or chatbot.
- ONLY provide the extracted information in JSON format.
- If the name of the person is not specified, set name as null.
- If the reason is not specified, set reason as null.
- DO NOT assume any reasons; provide null if the reason is not explicitly mentioned.
- Handle dates accurately based on the given reference date: "today" is {{.Today}}, "tomorrow" is the day after it.
- If the event covers a single day, set end_date to null. Only set end_date when the event spans more than one day.
- Half day vs whole day: set whole_day when the whole working day is affected or no part of the day is mentioned. Set first_half only for the morning (before lunch) and second_half only for the afternoon (after lunch). Never set whole_day together with first_half or second_half.
- Late arrival: set late to true only when the person arrives after 09:00. Arriving at exactly 09:00 or earlier is NOT late.
- Early departure: set early_departure to true only when the person leaves before 17:00. Leaving at exactly 17:00 or later is NOT an early departure.
- Late arrival and early departure are different conditions. They must never be conflated: do not set one because of the other.
- If the person is late but does not mention a specific leave, set every leave flag to false and provide the reason for lateness.
- Set partially_unavailable to true when the person keeps working but will be unavailable for part of the day without taking leave.
- If different statuses (e.g., WFH and leave) apply to different days, or to different halves of the same day, output them as separate JSON objects inside a JSON array, one object per date range and day part. Output a single JSON object when there is only one event.

Each JSON object has exactly these fields:

{
  "name": string or null,
  "late": boolean,
  "early_departure": boolean,
  "partially_unavailable": boolean,
  "leave": {"first_half": boolean, "second_half": boolean, "whole_day": boolean},
  "wfh": {"first_half": boolean, "second_half": boolean, "whole_day": boolean},
  "start_date": "YYYY-MM-DD" or null,
  "end_date": "YYYY-MM-DD" or null,
  "reason": string or null
}

Examples:
{{range .Examples}}
Input:
{{.Input}}
Date: {{.Date}}

Expected Output:
{{.Output}}
{{end}}
` + messageMarker + `{{.Text}}
`

var promptTemplate = template.Must(template.New("leave").Option("missingkey=error").Parse(promptText))

// Prompt renders the extraction instructions for one message.
type Prompt struct {
	examples []Example
}

// NewPrompt creates a prompt that shows the given worked examples.
func NewPrompt(examples []Example) *Prompt {
	return &Prompt{examples: examples}
}

// DefaultPrompt creates a prompt with the embedded worked examples.
func DefaultPrompt() (*Prompt, error) {
	examples, err := LoadExamples()
	if err != nil {
		return nil, err
	}
	return NewPrompt(examples), nil
}

// LoadExamples parses the embedded worked examples.
func LoadExamples() ([]Example, error) {
	var doc struct {
		Examples []Example `yaml:"examples"`
	}
	if err := yaml.Unmarshal(examplesYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse examples: %w", err)
	}

	for i := range doc.Examples {
		ex := &doc.Examples[i]
		ex.Input = strings.TrimSpace(ex.Input)
		ex.Output = strings.TrimSpace(ex.Output)
		if ex.Input == "" || ex.Output == "" {
			return nil, fmt.Errorf("example %d is incomplete", i)
		}
		if _, err := timeutil.ParseDate(ex.Date); err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
	}
	return doc.Examples, nil
}

// Examples returns the worked examples shown by this prompt.
func (p *Prompt) Examples() []Example {
	return p.examples
}

// Render builds the prompt for text using today as the reference date.
// It has no side effects; equal inputs give byte-identical output.
func (p *Prompt) Render(text, today string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: message text is required", ErrInvalidRequest)
	}
	if _, err := timeutil.ParseDate(today); err != nil {
		return "", fmt.Errorf("%w: reference date: %v", ErrInvalidRequest, err)
	}

	var b strings.Builder
	err := promptTemplate.Execute(&b, map[string]any{
		"Today":    today,
		"Text":     text,
		"Examples": p.examples,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}
