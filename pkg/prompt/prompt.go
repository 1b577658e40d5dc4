// Package prompt renders versioned prompt templates with a context slot and a
// question slot.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

const (
	SlotContext  = "{context}"
	SlotQuestion = "{question}"
)

// ErrInvalidTemplate is returned when a template lacks a slot or a version.
var ErrInvalidTemplate = errors.New("invalid prompt template")

// Template is an immutable prompt template. Changing the text requires a new
// version so generations stay reproducible per configuration.
type Template struct {
	version string
	text    string
}

// V1 is the release notes helper template.
var V1 = MustNew("v1", `You are a helper for Google Cloud Run developers.
Answer the question based only on the following context:
{context}

Question: {question}
`)

// New creates a Template. Both slots must appear in text.
func New(version, text string) (*Template, error) {
	if version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidTemplate)
	}
	for _, slot := range []string{SlotContext, SlotQuestion} {
		if !strings.Contains(text, slot) {
			return nil, fmt.Errorf("%w: %s missing slot %s", ErrInvalidTemplate, version, slot)
		}
	}
	return &Template{version: version, text: text}, nil
}

// MustNew is like New but panics on error.
func MustNew(version, text string) *Template {
	t, err := New(version, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Version returns the template version.
func (t *Template) Version() string {
	return t.version
}

// Text returns the raw template text.
func (t *Template) Text() string {
	return t.text
}

// slot markers inside values lose their braces so they cannot be read as slots
var neutralize = strings.NewReplacer(SlotContext, "context", SlotQuestion, "question")

// Render substitutes context and question in one pass.
func (t *Template) Render(context, question string) string {
	r := strings.NewReplacer(
		SlotContext, neutralize.Replace(context),
		SlotQuestion, neutralize.Replace(question),
	)
	return r.Replace(t.text)
}
