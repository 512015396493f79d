package responder

import (
	"fmt"
	"strings"
)

// DefaultPersona is the stock character the model is asked to play.
const DefaultPersona = `You are Gerald, an angry British group-chat regular.
You talk in short bursts, with bad grammar and no punctuation.
You are always winding your mate Tyler up about his weight.`

// DefaultStop are stop sequences that cut the model off before it starts
// writing the next speaker's turn.
var DefaultStop = []string{"\n\n", "Human:", "User:", "Discord:"}

// speakerPrefixes are labels models like to echo back before the reply.
var speakerPrefixes = []string{"gerald:", "bot:", "ai:", "response:", "assistant:"}

// exampleReplies are shown to the model only when every word in them is
// already known.
var exampleReplies = []string{
	"mate tyler massive innit",
	"bloody hell tyler heavy",
	"whatever tyler fat mate",
}

// PromptInput is everything that goes into one prompt.
type PromptInput struct {
	Persona    string
	Vocabulary []string
	// History is pre-formatted recent conversation, oldest first.
	History  string
	Sender   string
	Text     string
	MinWords int
	MaxWords int
	// Known reports whether a word is in the vocabulary; used to filter the
	// example replies.
	Known func(string) bool
}

// BuildPrompt assembles the closed-vocabulary prompt. Sections, in order:
//
//  1. persona
//  2. the complete allowed word list
//  3. recent conversation, when there is any
//  4. the message being answered
//  5. output rules and examples that only use known words
func BuildPrompt(in PromptInput) string {
	var sb strings.Builder

	persona := strings.TrimSpace(in.Persona)
	if persona == "" {
		persona = DefaultPersona
	}
	sb.WriteString(persona)

	// ─── Vocabulary ──────────────────────────────────────────────────────────
	sb.WriteString("\n\nCRITICAL RULE: you can ONLY use words from this exact list. Do NOT use any other words:\n")
	sb.WriteString(strings.Join(in.Vocabulary, ", "))

	// ─── History ─────────────────────────────────────────────────────────────
	if h := strings.TrimSpace(in.History); h != "" {
		sb.WriteString("\n\nRecent conversation:\n")
		sb.WriteString(h)
	}

	// ─── Message ─────────────────────────────────────────────────────────────
	sender := in.Sender
	if sender == "" {
		sender = "USER"
	}
	fmt.Fprintf(&sb, "\n\n%s SAID: %q", strings.ToUpper(sender), in.Text)

	// ─── Rules ───────────────────────────────────────────────────────────────
	fmt.Fprintf(&sb, "\n\nRESPOND AS GERALD:\n- use ONLY words from the list above\n- %d-%d words\n- no punctuation\n- one line only", in.MinWords, in.MaxWords)

	var examples []string
	if in.Known != nil {
		for _, ex := range exampleReplies {
			if allKnown(ex, in.Known) {
				examples = append(examples, ex)
			}
		}
	}
	if len(examples) > 0 {
		sb.WriteString("\n\nExample replies:\n")
		for _, ex := range examples {
			fmt.Fprintf(&sb, "- %s\n", ex)
		}
	}

	sb.WriteString("\nGerald replies using ONLY vocabulary words:")
	return sb.String()
}

func allKnown(sentence string, known func(string) bool) bool {
	for _, w := range strings.Fields(sentence) {
		if !known(w) {
			return false
		}
	}
	return true
}

// CleanResponse reduces raw model output to a single candidate line: the
// first non-empty line, without a speaker label, surrounding quotes or
// leading and trailing punctuation.
func CleanResponse(raw string) string {
	line := ""
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	lower := strings.ToLower(line)
	for _, p := range speakerPrefixes {
		if strings.HasPrefix(lower, p) {
			line = strings.TrimSpace(line[len(p):])
			break
		}
	}
	line = strings.Trim(line, ".,!?;:\"' \t")
	return line
}
