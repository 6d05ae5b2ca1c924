package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"sparks/models"

	log "github.com/sirupsen/logrus"
)

// WagerTerms are the user supplied parameters of a new wager
type WagerTerms struct {
	Statement       string
	OddsFor         int
	OddsAgainst     int
	DurationMinutes int
}

// Validate checks the terms and returns the trimmed statement
func (t WagerTerms) Validate() (string, error) {
	const op = "validate wager"

	if !utf8.ValidString(t.Statement) || strings.ContainsRune(t.Statement, 0) {
		return "", newError(KindValidation, op, "statement must be valid text")
	}

	statement := strings.TrimSpace(t.Statement)
	if statement == "" {
		return "", newError(KindValidation, op, "statement cannot be empty")
	}
	if utf8.RuneCountInString(statement) > models.MaxStatementLength {
		return "", newError(KindValidation, op, "statement cannot exceed %d characters", models.MaxStatementLength)
	}
	if t.OddsFor < models.MinOdds || t.OddsFor > models.MaxOdds {
		return "", newError(KindValidation, op, "odds for must be between %d and %d", models.MinOdds, models.MaxOdds)
	}
	if t.OddsAgainst < models.MinOdds || t.OddsAgainst > models.MaxOdds {
		return "", newError(KindValidation, op, "odds against must be between %d and %d", models.MinOdds, models.MaxOdds)
	}
	if t.DurationMinutes < models.MinDurationMinutes || t.DurationMinutes > models.MaxDurationMinutes {
		return "", newError(KindValidation, op, "duration must be between %d and %d minutes", models.MinDurationMinutes, models.MaxDurationMinutes)
	}
	return statement, nil
}

// WagerRegistry creates wagers with unique aliases and looks them up
type WagerRegistry struct {
	aliases AliasGenerator
}

// NewWagerRegistry creates a registry drawing ids from aliases
func NewWagerRegistry(aliases AliasGenerator) *WagerRegistry {
	if aliases == nil {
		aliases = NewRandomAliasGenerator(nil)
	}
	return &WagerRegistry{aliases: aliases}
}

// Create validates the terms and inserts an open wager using repo,
// retrying on alias collisions.
func (r *WagerRegistry) Create(ctx context.Context, repo WagerRepository, openerID int64, terms WagerTerms, now time.Time) (*models.Wager, error) {
	const op = "create wager"

	statement, err := terms.Validate()
	if err != nil {
		return nil, err
	}

	wager := &models.Wager{
		OpenerID:    openerID,
		Statement:   statement,
		OddsFor:     terms.OddsFor,
		OddsAgainst: terms.OddsAgainst,
		Status:      models.WagerStatusOpen,
		OpensAt:     now,
		ClosesAt:    now.Add(time.Duration(terms.DurationMinutes) * time.Minute),
	}

	for attempt := 1; attempt <= MaxAliasAttempts; attempt++ {
		alias, err := r.aliases.NewAlias()
		if err != nil {
			return nil, &Error{Kind: KindInternal, Op: op, Err: err}
		}
		wager.ID = alias

		inserted, err := repo.Insert(ctx, wager)
		if err != nil {
			return nil, storageError(op, err)
		}
		if inserted {
			return wager, nil
		}

		log.WithFields(log.Fields{
			"alias":   alias,
			"attempt": attempt,
		}).Debug("Wager alias collision, retrying")
	}

	return nil, newError(KindIDAllocationExhausted, op, "no free wager id after %d attempts", MaxAliasAttempts)
}

// FindOpenByAlias returns the open wager with the given alias. Settled
// and unknown wagers both report not found.
func (r *WagerRegistry) FindOpenByAlias(ctx context.Context, repo WagerRepository, alias string) (*models.Wager, error) {
	const op = "find wager"

	id := NormalizeAlias(alias)
	if !IsValidAlias(id) {
		return nil, newError(KindNotFound, op, "wager %q not found", alias)
	}

	wager, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError(op, err)
	}
	if wager == nil || !wager.IsOpen() {
		return nil, newError(KindNotFound, op, "wager %s not found", id)
	}
	return wager, nil
}
