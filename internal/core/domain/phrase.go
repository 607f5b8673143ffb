package domain

import "time"

// PhraseDifficulty tiers the challenge text complexity.
type PhraseDifficulty string

const (
	PhraseDifficultyEasy   PhraseDifficulty = "easy"
	PhraseDifficultyMedium PhraseDifficulty = "medium"
	PhraseDifficultyHard   PhraseDifficulty = "hard"
)

// Valid reports whether the difficulty is one of the known tiers.
func (d PhraseDifficulty) Valid() bool {
	switch d {
	case PhraseDifficultyEasy, PhraseDifficultyMedium, PhraseDifficultyHard:
		return true
	}
	return false
}

// Phrase is an immutable challenge text unit. The engine only reads phrases;
// curation happens through the admin surface.
type Phrase struct {
	ID         string
	Text       string
	Language   string
	Difficulty PhraseDifficulty
	Active     bool
	CreatedAt  time.Time
}
