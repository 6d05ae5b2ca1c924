package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"sparks/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWagerTerms_Validate(t *testing.T) {
	valid := WagerTerms{Statement: "Rain", OddsFor: 1, OddsAgainst: 10, DurationMinutes: 5}
	statement, err := valid.Validate()
	require.NoError(t, err)
	assert.Equal(t, "Rain", statement)

	boundary := WagerTerms{Statement: strings.Repeat("é", 200), OddsFor: 10, OddsAgainst: 1, DurationMinutes: 10080}
	_, err = boundary.Validate()
	assert.NoError(t, err, "length is counted in characters")

	tests := []struct {
		name  string
		terms WagerTerms
	}{
		{"blank statement", WagerTerms{Statement: "   ", OddsFor: 2, OddsAgainst: 1, DurationMinutes: 10}},
		{"statement too long", WagerTerms{Statement: strings.Repeat("a", 201), OddsFor: 2, OddsAgainst: 1, DurationMinutes: 10}},
		{"invalid utf-8", WagerTerms{Statement: "bad \xff\xfe bytes", OddsFor: 2, OddsAgainst: 1, DurationMinutes: 10}},
		{"nul byte", WagerTerms{Statement: "rain\x00tomorrow", OddsFor: 2, OddsAgainst: 1, DurationMinutes: 10}},
		{"odds for zero", WagerTerms{Statement: "Rain", OddsFor: 0, OddsAgainst: 1, DurationMinutes: 10}},
		{"odds against above max", WagerTerms{Statement: "Rain", OddsFor: 2, OddsAgainst: 11, DurationMinutes: 10}},
		{"duration too short", WagerTerms{Statement: "Rain", OddsFor: 2, OddsAgainst: 1, DurationMinutes: 4}},
		{"duration too long", WagerTerms{Statement: "Rain", OddsFor: 2, OddsAgainst: 1, DurationMinutes: 10081}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.terms.Validate()
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
		})
	}
}

func TestWagerRegistry_Create(t *testing.T) {
	ctx := context.Background()
	terms := WagerTerms{Statement: "Rain", OddsFor: 3, OddsAgainst: 2, DurationMinutes: 90}

	t.Run("alias generator failure", func(t *testing.T) {
		aliases := &MockAliasGenerator{}
		aliases.On("NewAlias").Return("", errors.New("no entropy"))
		repo := &MockWagerRepository{}

		_, err := NewWagerRegistry(aliases).Create(ctx, repo, testOpenerID, terms, testNow)
		assert.Equal(t, KindInternal, KindOf(err))
		repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("insert failure is transient", func(t *testing.T) {
		aliases := &MockAliasGenerator{}
		aliases.On("NewAlias").Return(testWagerID, nil)
		repo := &MockWagerRepository{}
		repo.On("Insert", ctx, mock.Anything).Return(false, errors.New("timeout"))

		_, err := NewWagerRegistry(aliases).Create(ctx, repo, testOpenerID, terms, testNow)
		assert.True(t, errors.Is(err, ErrTransient))
	})

	t.Run("sets the window", func(t *testing.T) {
		aliases := &MockAliasGenerator{}
		aliases.On("NewAlias").Return(testWagerID, nil)
		repo := &MockWagerRepository{}
		repo.On("Insert", ctx, mock.Anything).Return(true, nil)

		w, err := NewWagerRegistry(aliases).Create(ctx, repo, testOpenerID, terms, testNow)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(90*time.Minute), w.ClosesAt)
		assert.Equal(t, 3, w.Odds(models.SideFor))
		assert.Equal(t, 2, w.Odds(models.SideAgainst))
	})
}

func TestWagerRegistry_FindOpenByAlias(t *testing.T) {
	ctx := context.Background()
	registry := NewWagerRegistry(nil)

	t.Run("malformed alias never hits storage", func(t *testing.T) {
		repo := &MockWagerRepository{}
		_, err := registry.FindOpenByAlias(ctx, repo, "nope")
		assert.True(t, errors.Is(err, ErrNotFound))
		repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("open wager", func(t *testing.T) {
		repo := &MockWagerRepository{}
		repo.On("GetByID", ctx, testWagerID).Return(openWager(), nil)
		w, err := registry.FindOpenByAlias(ctx, repo, "abc234")
		require.NoError(t, err)
		assert.Equal(t, testWagerID, w.ID)
	})
}
