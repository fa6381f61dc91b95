package inference

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
	"time"
)

// defaultPrompt is the instruction sent with every intake. The nutrition
// estimation rules are for the model; nothing in this service applies them.
const defaultPrompt = `You are a nutrition logging assistant. The current date and time is {{.Now}} ({{.Weekday}}).

Read the user's description of what they ate and estimate the nutrition of each food.

Rules:
- Scale every value by the stated quantity ("2 eggs" is twice one egg).
- Account for cooking method: fried food carries more fat and calories than boiled, steamed or grilled food.
- Use typical portion sizes when the amount is vague.
- If the user says when they ate ("this morning", "last night", "yesterday at 8"), use that time; otherwise use the current time.

Reply with ONLY a JSON object, no prose, in exactly this shape:

{
  "<ISO-8601 date-time of the meal>": {
    "foods": [
      {
        "name": "<food name>",
        "calories": "<number as string>",
        "protein": "<grams as string>",
        "carbs": "<grams as string>",
        "fat": "<grams as string>",
        "amount": "<quantity eaten>"
      }
    ],
    "summary": {
      "calories": "<sum as string>",
      "protein": "<sum as string>",
      "carbs": "<sum as string>",
      "fat": "<sum as string>"
    }
  }
}
`

// Prompt renders the system instruction for a given moment.
type Prompt struct {
	tmpl *template.Template
	loc  *time.Location
}

type promptData struct {
	Now     string
	Date    string
	Weekday string
}

// NewPrompt parses text as the instruction template. Empty text means the
// built-in instruction. Available fields: {{.Now}} (RFC 3339), {{.Date}}
// (YYYY-MM-DD) and {{.Weekday}}, all in loc.
func NewPrompt(text string, loc *time.Location) (*Prompt, error) {
	if text == "" {
		text = defaultPrompt
	}
	if loc == nil {
		loc = time.UTC
	}
	tmpl, err := template.New("system").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing system prompt: %w", err)
	}
	return &Prompt{tmpl: tmpl, loc: loc}, nil
}

// LoadPrompt reads the template from path, or uses the built-in one when
// path is empty.
func LoadPrompt(path string, loc *time.Location) (*Prompt, error) {
	if path == "" {
		return NewPrompt("", loc)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading system prompt: %w", err)
	}
	return NewPrompt(string(b), loc)
}

// Render returns the instruction for now.
func (p *Prompt) Render(now time.Time) (string, error) {
	t := now.In(p.loc)
	var buf bytes.Buffer
	err := p.tmpl.Execute(&buf, promptData{
		Now:     t.Format(time.RFC3339),
		Date:    t.Format("2006-01-02"),
		Weekday: t.Weekday().String(),
	})
	if err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return buf.String(), nil
}
