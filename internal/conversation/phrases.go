package conversation

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	submitPhrases       = []string{"submit", "send", "отправить", "отправить заявку"}
	onlyMePhrases       = []string{"только я", "только меня", "only me", "just me", "один"}
	participantKeywords = []string{"участник", "участники", "participants"}
	threadNameMarkers   = []string{"заявка", "событие", "кристал", "убийство", "ганк", "доставка", "сфера", "вихрь"}
)

var folder = cases.Fold()

// fold normalizes text for phrase comparison: NFKC, case folded, inner whitespace collapsed.
func fold(text string) string {
	text = folder.String(norm.NFKC.String(text))
	return strings.Join(strings.Fields(text), " ")
}

func containsAny(text string, phrases []string) bool {
	folded := fold(text)
	for _, phrase := range phrases {
		if strings.Contains(folded, fold(phrase)) {
			return true
		}
	}
	return false
}

// IsSubmitCommand is true only when the whole message is a submit phrase.
func IsSubmitCommand(text string) bool {
	folded := strings.Trim(fold(text), " .!")
	for _, phrase := range submitPhrases {
		if folded == fold(phrase) {
			return true
		}
	}
	return false
}

func HasOnlyMePhrase(text string) bool {
	return containsAny(text, onlyMePhrases)
}

// IsSubmissionThreadName matches the names the bot gives submission threads.
func IsSubmissionThreadName(name string) bool {
	return containsAny(name, threadNameMarkers)
}

// looksLikeParticipantsAnswer guesses whether a message was meant for the participants prompt.
func looksLikeParticipantsAnswer(content string, mentions int) bool {
	if mentions > 0 || strings.Contains(content, "@") {
		return true
	}
	return HasOnlyMePhrase(content) || containsAny(content, participantKeywords)
}
