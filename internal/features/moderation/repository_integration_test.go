//go:build integration

package moderation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/points-bot/internal/features/moderation"
	"serotonyl.ru/points-bot/internal/testutil"
)

func TestRepositoryWords(t *testing.T) {
	repo := moderation.NewRepository(testutil.NewTestPool(t))
	ctx := context.Background()

	added, err := repo.AddWord(ctx, "казино")
	require.NoError(t, err)
	require.True(t, added)
	added, err = repo.AddWord(ctx, "казино")
	require.NoError(t, err)
	require.False(t, added)
	_, err = repo.AddWord(ctx, "ставки")
	require.NoError(t, err)

	words, err := repo.ListWords(ctx)
	require.NoError(t, err)
	require.Len(t, words, 2)
	require.Equal(t, "казино", words[0].Word)
	require.Equal(t, "ставки", words[1].Word)

	removed, err := repo.RemoveWord(ctx, "казино")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = repo.RemoveWord(ctx, "казино")
	require.NoError(t, err)
	require.False(t, removed)
}
