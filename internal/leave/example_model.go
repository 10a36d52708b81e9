package leave

import (
	"context"
	"strings"
)

// ExampleModel answers prompts from the worked examples: a message equal to
// an example input gets that example's output. Anything else gets prose with
// no JSON in it, the way a confused model would answer. The reference date
// in the prompt is ignored; replayed dates are the example's own.
type ExampleModel struct {
	answers map[string]string
}

func NewExampleModel(examples []Example) *ExampleModel {
	answers := make(map[string]string, len(examples))
	for _, ex := range examples {
		answers[strings.TrimSpace(ex.Input)] = ex.Output
	}
	return &ExampleModel{answers: answers}
}

func (m *ExampleModel) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	message := MessageFromPrompt(prompt)
	if answer, ok := m.answers[message]; ok {
		return "Here is the extracted information:\n```json\n" + answer + "\n```", nil
	}
	return "I could not find any leave, WFH or late arrival information in this message.", nil
}

// MessageFromPrompt recovers the caller's message from a rendered prompt.
func MessageFromPrompt(prompt string) string {
	idx := strings.LastIndex(prompt, messageMarker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(prompt[idx+len(messageMarker):])
}
