package conversation

import "strings"

// SummarizeTurns folds turns into a preference profile. This is the lossy
// half of memory: verbatim text is dropped, only counted preference signals
// survive.
func SummarizeTurns(turns []Turn) Profile {
	profile := Profile{}
	for _, turn := range turns {
		profile = foldTurn(profile, turn)
	}
	return profile
}

// MergeInto folds additional turns into an existing profile, used when the
// memory window slides and evicted turns join the summary. Turn indexes are
// contiguous from zero and fold oldest-first, so TurnsFolded is also the next
// index to fold; turns below it were already folded and are skipped, which
// makes a retried fold idempotent.
func MergeInto(profile Profile, turns []Turn) Profile {
	for _, turn := range turns {
		if turn.Index < profile.TurnsFolded {
			continue
		}
		profile = foldTurn(profile, turn)
	}
	return profile
}

func foldTurn(p Profile, turn Turn) Profile {
	if turn.Failed {
		// Failed exchanges carry no preference signal.
		p.TurnsFolded++
		return p
	}
	for _, g := range turn.Facts.Genres {
		p.GenreCounts = bump(p.GenreCounts, g)
	}
	for _, d := range turn.Facts.Directors {
		p.DirectorCounts = bump(p.DirectorCounts, d)
	}
	for _, a := range turn.Facts.Actors {
		p.ActorCounts = bump(p.ActorCounts, a)
	}
	for _, title := range turn.Facts.Titles {
		p.LikedTitles = appendUnique(p.LikedTitles, title)
	}
	p.TurnsFolded++
	return p
}

func bump(counts map[string]int, key string) map[string]int {
	if counts == nil {
		counts = make(map[string]int)
	}
	counts[key]++
	return counts
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

// TopGenres returns up to n genres by count descending, name ascending on
// ties, so profile rendering is deterministic.
func (p Profile) TopGenres(n int) []string {
	return topKeys(p.GenreCounts, n)
}

func (p Profile) TopDirectors(n int) []string {
	return topKeys(p.DirectorCounts, n)
}

// Render formats the profile as one prompt line, empty when nothing has been
// folded yet.
func (p Profile) Render() string {
	if p.IsEmpty() {
		return ""
	}
	var parts []string
	if genres := p.TopGenres(3); len(genres) > 0 {
		parts = append(parts, "favors "+strings.Join(genres, ", "))
	}
	if directors := p.TopDirectors(2); len(directors) > 0 {
		parts = append(parts, "admires "+strings.Join(directors, ", "))
	}
	if len(p.LikedTitles) > 0 {
		parts = append(parts, "liked "+strings.Join(p.LikedTitles, ", "))
	}
	return "Viewer preferences: " + strings.Join(parts, "; ") + "."
}

func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// insertion sort, the maps stay tiny
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0; j-- {
			a, b := keys[j-1], keys[j]
			if counts[b] > counts[a] || (counts[b] == counts[a] && b < a) {
				keys[j-1], keys[j] = keys[j], keys[j-1]
			}
		}
	}
	if n > 0 && n < len(keys) {
		keys = keys[:n]
	}
	return keys
}
