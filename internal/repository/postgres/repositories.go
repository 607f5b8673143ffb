package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups the concrete PostgreSQL repository implementations.
type Repositories struct {
	Identities  *IdentityRepository
	Phrases     *PhraseRepository
	Challenges  *ChallengeRepository
	Voiceprints *VoiceprintRepository
	Samples     *SampleRepository
	Attempts    *AttemptRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Identities:  NewIdentityRepository(pool),
		Phrases:     NewPhraseRepository(pool),
		Challenges:  NewChallengeRepository(pool),
		Voiceprints: NewVoiceprintRepository(pool),
		Samples:     NewSampleRepository(pool),
		Attempts:    NewAttemptRepository(pool),
	}
}
