package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"roomframe/internal/models"
)

// LexiconHandler is invoked when a registered phrase matches an inbound
// message. The trigger carries the matched phrase and tokenized args.
type LexiconHandler func(bot *Bot, trigger *models.Trigger)

// LexiconEntry is one phrase→handler binding. Exactly one of Phrase or
// Pattern is set. Lower Preference wins when several entries match.
type LexiconEntry struct {
	ID         string
	Phrase     string
	Pattern    *regexp.Regexp
	Handler    LexiconHandler
	Help       string
	Preference int
}

// LexiconMatch pairs a matched entry with the args computed for it
type LexiconMatch struct {
	Entry *LexiconEntry
	Args  []string
}

// Lexicon is the registry of phrase→handler bindings
type Lexicon struct {
	mu      sync.RWMutex
	entries []*LexiconEntry
}

// NewLexicon creates an empty lexicon
func NewLexicon() *Lexicon {
	return &Lexicon{}
}

// Hears registers an exact-phrase entry and returns its id. The phrase is
// matched case-insensitively against the first word of a message, or against
// any word when the speaker is an automated account.
func (l *Lexicon) Hears(phrase string, handler LexiconHandler, help string, preference int) (string, error) {
	if strings.TrimSpace(phrase) == "" {
		return "", fmt.Errorf("phrase must not be empty")
	}
	if handler == nil {
		return "", fmt.Errorf("handler must not be nil")
	}
	entry := &LexiconEntry{
		ID:         uuid.NewString(),
		Phrase:     phrase,
		Handler:    handler,
		Help:       help,
		Preference: preference,
	}
	l.add(entry)
	return entry.ID, nil
}

// HearsPattern registers a pattern entry tested against the whole normalized
// message text.
func (l *Lexicon) HearsPattern(pattern *regexp.Regexp, handler LexiconHandler, help string, preference int) (string, error) {
	if pattern == nil {
		return "", fmt.Errorf("pattern must not be nil")
	}
	if handler == nil {
		return "", fmt.Errorf("handler must not be nil")
	}
	entry := &LexiconEntry{
		ID:         uuid.NewString(),
		Pattern:    pattern,
		Handler:    handler,
		Help:       help,
		Preference: preference,
	}
	l.add(entry)
	return entry.ID, nil
}

func (l *Lexicon) add(entry *LexiconEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Clears removes an entry by id
func (l *Lexicon) Clears(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, entry := range l.entries {
		if entry.ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered entries
func (l *Lexicon) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Help renders the registered help lines sorted by preference, then phrase
func (l *Lexicon) Help() string {
	l.mu.RLock()
	entries := append([]*LexiconEntry(nil), l.entries...)
	l.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Preference != entries[j].Preference {
			return entries[i].Preference < entries[j].Preference
		}
		return entries[i].Phrase < entries[j].Phrase
	})

	var sb strings.Builder
	for _, entry := range entries {
		if entry.Help == "" {
			continue
		}
		sb.WriteString("* ")
		sb.WriteString(entry.Help)
		sb.WriteString("\n")
	}
	return sb.String()
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeText trims the text, folds CR/LF into spaces and collapses runs of
// whitespace to a single space.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// Match returns the entries that fire for the text. When several entries
// match, only those sharing the minimum preference value survive; all of
// those fire.
//
// isAutomated relaxes exact-phrase matching from first-word to any word,
// because automated accounts are only delivered messages that mention them
// and the mention may precede the phrase.
func (l *Lexicon) Match(text string, isAutomated bool) []LexiconMatch {
	norm := NormalizeText(text)
	if norm == "" {
		return nil
	}
	tokens := strings.Fields(norm)

	l.mu.RLock()
	entries := append([]*LexiconEntry(nil), l.entries...)
	l.mu.RUnlock()

	var matches []LexiconMatch
	for _, entry := range entries {
		if entry.Pattern != nil {
			if entry.Pattern.MatchString(norm) {
				matches = append(matches, LexiconMatch{Entry: entry, Args: tokens})
			}
			continue
		}
		if idx, ok := matchPhrase(entry.Phrase, tokens, isAutomated); ok {
			matches = append(matches, LexiconMatch{Entry: entry, Args: tokens[idx:]})
		}
	}
	if len(matches) <= 1 {
		return matches
	}

	min := matches[0].Entry.Preference
	for _, m := range matches[1:] {
		if m.Entry.Preference < min {
			min = m.Entry.Preference
		}
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.Entry.Preference == min {
			kept = append(kept, m)
		}
	}
	return kept
}

// matchPhrase returns the index of the first token matching phrase. Human
// speakers must lead with the phrase; automated ones may say it anywhere.
func matchPhrase(phrase string, tokens []string, isAutomated bool) (int, bool) {
	if len(tokens) == 0 {
		return 0, false
	}
	if !isAutomated {
		if tokenEquals(tokens[0], phrase) {
			return 0, true
		}
		return 0, false
	}
	for i, tok := range tokens {
		if tokenEquals(tok, phrase) {
			return i, true
		}
	}
	return 0, false
}

// tokenEquals compares a token against a phrase case-insensitively, ignoring
// surrounding punctuation so "status?" or "status," still hit "status".
func tokenEquals(tok, phrase string) bool {
	if strings.EqualFold(tok, phrase) {
		return true
	}
	trimmed := strings.TrimFunc(tok, unicode.IsPunct)
	return trimmed != "" && strings.EqualFold(trimmed, phrase)
}
