package conversation

import "time"

// Facts are the preference signals extracted from one exchange: titles the
// user mentioned or was recommended, plus genres, directors and actors that
// came up.
type Facts struct {
	Titles    []string `json:"titles,omitempty"`
	Genres    []string `json:"genres,omitempty"`
	Directors []string `json:"directors,omitempty"`
	Actors    []string `json:"actors,omitempty"`
}

// Turn is one completed exchange. Turns are append-only; a turn is recorded
// exactly once, after response generation.
type Turn struct {
	Index     int       `json:"index"`
	UserQuery string    `json:"user_query"`
	Facts     Facts     `json:"facts"`
	Response  string    `json:"response"`
	Evidence  []string  `json:"evidence,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the rolling summary of turns older than the memory window.
// Counting instead of keeping text keeps its size bounded by the corpus
// vocabulary, not by conversation length.
type Profile struct {
	GenreCounts    map[string]int `json:"genre_counts,omitempty"`
	DirectorCounts map[string]int `json:"director_counts,omitempty"`
	ActorCounts    map[string]int `json:"actor_counts,omitempty"`
	LikedTitles    []string       `json:"liked_titles,omitempty"`
	TurnsFolded    int            `json:"turns_folded"`
}

func (p Profile) IsEmpty() bool {
	return len(p.GenreCounts) == 0 &&
		len(p.DirectorCounts) == 0 &&
		len(p.ActorCounts) == 0 &&
		len(p.LikedTitles) == 0
}
