package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// ErrNoUsableQuery means augmentation could not produce any query worth
// retrieving with: the raw query was blank and history offered nothing to
// resolve it against.
var ErrNoUsableQuery = errors.New("no usable query")

// Follow-up phrasings that signal the query leans on prior turns.
var followUpPhrases = []string{
	"similar",
	"what else",
	"more like",
	"like that",
	"like it",
	"same vibe",
	"along those lines",
	"another one",
	"anything else",
}

// Bare pronouns that refer back to an earlier movie when the query itself
// names none.
var backReferences = map[string]struct{}{
	"it": {}, "that": {}, "this": {}, "them": {}, "those": {}, "these": {},
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}']+`)

// Memory augments raw queries with session history and records completed
// turns, keeping only the last window turns verbatim and folding older ones
// into the preference profile.
type Memory struct {
	store  Store
	titles []string
	window int
	logger *zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemory(store Store, knownTitles []string, window int, logger *zerolog.Logger) *Memory {
	if window <= 0 {
		window = 5
	}
	return &Memory{
		store:  store,
		titles: knownTitles,
		window: window,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Lock serializes in-flight requests for one session and returns the unlock
// function. A request that augments must hold the lock until it records, so
// a later request observes the earlier one's turn.
func (m *Memory) Lock(sessionID string) func() {
	m.mu.Lock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CreateSession allocates a new session in the underlying store.
func (m *Memory) CreateSession(ctx context.Context) (string, error) {
	return m.store.CreateSession(ctx)
}

// Reset deletes the session's stored state and drops its lock entry, so the
// lock map stays bounded by live sessions.
func (m *Memory) Reset(ctx context.Context, sessionID string) error {
	if err := m.store.Reset(ctx, sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.locks, sessionID)
	m.mu.Unlock()
	return nil
}

// Augment resolves references in rawQuery against the last window turns and
// the preference profile, returning a self-contained query.
func (m *Memory) Augment(ctx context.Context, sessionID, rawQuery string) (string, error) {
	raw := strings.TrimSpace(rawQuery)
	if raw == "" {
		return "", ErrNoUsableQuery
	}

	// A query that names a movie itself needs no history.
	if len(m.ExtractTitles(raw)) > 0 {
		return raw, nil
	}
	if !m.needsResolution(raw) {
		return raw, nil
	}

	turns, err := m.store.Turns(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session turns: %w", err)
	}

	titles := recentTitles(turns, m.window)
	if len(titles) > 0 {
		effective := raw + " " + strings.Join(titles, " ")
		m.logger.Debug().
			Str("session_id", sessionID).
			Strs("titles", titles).
			Msg("Resolved query references from session history")
		return effective, nil
	}

	// No recent titles. Fall back to the profile's strongest signals so a
	// long-running session still gets a personalized query.
	profile, err := m.store.Profile(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session profile: %w", err)
	}
	hints := append(profile.TopGenres(2), profile.LikedTitles...)
	if len(hints) == 0 {
		m.logger.Debug().
			Str("session_id", sessionID).
			Msg("Query has unresolved references but session has no history")
		return raw, nil
	}
	return raw + " " + strings.Join(hints, " "), nil
}

// Record appends a completed turn, then slides the memory window: turns
// beyond the last window are folded into the profile and trimmed. Called
// exactly once per exchange, after generation.
func (m *Memory) Record(ctx context.Context, sessionID string, turn Turn) error {
	turns, err := m.store.Turns(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session turns: %w", err)
	}
	turn.Index = nextIndex(turns)
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if err := m.store.AppendTurn(ctx, sessionID, turn); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	retained := len(turns) + 1
	if retained <= m.window {
		return nil
	}

	evicted := append([]Turn(nil), turns[:retained-m.window]...)
	profile, err := m.store.Profile(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session profile: %w", err)
	}
	profile = MergeInto(profile, evicted)
	if err := m.store.SaveProfile(ctx, sessionID, profile); err != nil {
		return fmt.Errorf("failed to save session profile: %w", err)
	}
	if err := m.store.TrimTurns(ctx, sessionID, m.window); err != nil {
		return fmt.Errorf("failed to trim session turns: %w", err)
	}
	m.logger.Debug().
		Str("session_id", sessionID).
		Int("folded", len(evicted)).
		Int("turns_folded_total", profile.TurnsFolded).
		Msg("Folded evicted turns into preference profile")
	return nil
}

// ProfileSummary renders the session's preference profile for the prompt.
func (m *Memory) ProfileSummary(ctx context.Context, sessionID string) (string, error) {
	profile, err := m.store.Profile(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session profile: %w", err)
	}
	return profile.Render(), nil
}

// ExtractTitles returns the known movie titles mentioned in text, in catalog
// order, matching whole words case-insensitively.
func (m *Memory) ExtractTitles(text string) []string {
	haystack := " " + normalizeWords(text) + " "
	var found []string
	for _, title := range m.titles {
		needle := " " + normalizeWords(title) + " "
		if strings.Contains(haystack, needle) {
			found = append(found, title)
		}
	}
	return found
}

func (m *Memory) needsResolution(query string) bool {
	lower := strings.ToLower(query)
	for _, phrase := range followUpPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, word := range wordPattern.FindAllString(lower, -1) {
		if _, ok := backReferences[word]; ok {
			return true
		}
	}
	return false
}

// recentTitles collects titles from the last window turns, most recent first,
// without duplicates. Failed turns contribute nothing.
func recentTitles(turns []Turn, window int) []string {
	start := 0
	if len(turns) > window {
		start = len(turns) - window
	}
	var titles []string
	for i := len(turns) - 1; i >= start; i-- {
		if turns[i].Failed {
			continue
		}
		for _, title := range turns[i].Facts.Titles {
			titles = appendUnique(titles, title)
		}
	}
	return titles
}

func nextIndex(turns []Turn) int {
	if len(turns) == 0 {
		return 0
	}
	return turns[len(turns)-1].Index + 1
}

// normalizeWords lowercases and strips punctuation so title matching survives
// trailing commas and question marks.
func normalizeWords(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if r == '\'' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
