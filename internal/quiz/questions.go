package quiz

import (
	"html"
	"slices"
	"strings"
)

// Option is one answer of a question. Value is what gets recorded; Label is
// what the participant taps.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Question is a prompt with a fixed set of options.
type Question struct {
	Text    string   `json:"text"`
	Options []Option `json:"options"`
}

// IntroText greets the participant and asks for a name.
const IntroText = "Welcome to the <strong>Deliberate Practice Meetup</strong>! Tell us your name."

// ResultTemplate is filled with the name and both selections.
const ResultTemplate = "Interesting result! {name} leans toward {selection1} and {selection2}."

// Questions asked after the name, in order.
var Questions = [2]Question{
	{
		Text: "You agreed to meet friends this weekend. What's your move?",
		Options: []Option{
			{Value: "spontaneous adventure", Label: "Let's just go and find a good spot!"},
			{Value: "detailed planning", Label: "Where exactly are we meeting?"},
			{Value: "personal time", Label: "I'm tired... next time?"},
		},
	},
	{
		Text: "Last one! How do you usually deal with stress?",
		Options: []Option{
			{Value: "active outlet", Label: "Work it off with exercise"},
			{Value: "artistic expression", Label: "Music or something creative"},
			{Value: "restful break", Label: "Sleep it off at home"},
		},
	},
}

// ResultText renders ResultTemplate. The name is HTML-escaped since prompts
// carry markup.
func ResultText(name, selection1, selection2 string) string {
	return strings.NewReplacer(
		"{name}", html.EscapeString(name),
		"{selection1}", selection1,
		"{selection2}", selection2,
	).Replace(ResultTemplate)
}

func questionFor(s State) (Question, bool) {
	switch s {
	case StateQ1:
		return Questions[0], true
	case StateQ2:
		return Questions[1], true
	}
	return Question{}, false
}

// OptionsFor returns the options offered in a state, if any.
func OptionsFor(s State) []Option {
	q, ok := questionFor(s)
	if !ok {
		return nil
	}
	return slices.Clone(q.Options)
}

func (q Question) has(value string) bool {
	return slices.ContainsFunc(q.Options, func(o Option) bool { return o.Value == value })
}

// PromptFor returns the text shown in a state.
func PromptFor(s State, name string, selections []string) string {
	switch s {
	case StateName:
		return IntroText
	case StateQ1, StateQ2:
		q, _ := questionFor(s)
		return q.Text
	case StateResult:
		var s1, s2 string
		if len(selections) > 0 {
			s1 = selections[0]
		}
		if len(selections) > 1 {
			s2 = selections[1]
		}
		return ResultText(name, s1, s2)
	}
	return ""
}
