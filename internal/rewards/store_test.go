package rewards

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenfelt/greenfelt/internal/lobby"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "rewards.db"), log.New(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAwardPokerWin_CreditsCoinsAndWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.AwardPokerWin(ctx, []string{"alice"}))
	require.NoError(t, s.AwardPokerWin(ctx, []string{"alice"}))

	coins, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2*PokerWinCoins, coins)

	poker, uno, err := s.Wins(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, poker)
	assert.Equal(t, 0, uno)
}

func TestAwardPokerWin_SplitPotCreditsAllWinners(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.AwardPokerWin(ctx, []string{"alice", "bob"}))

	for _, id := range []string{"alice", "bob"} {
		coins, err := s.Balance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, PokerWinCoins, coins, id)
	}
}

func TestAwardUnoWin_SeparateCounter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.AwardUnoWin(ctx, []string{"bob"}))

	coins, err := s.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, UnoWinCoins, coins)

	poker, uno, err := s.Wins(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, poker)
	assert.Equal(t, 1, uno)
}

func TestBalance_UnknownUserIsZero(t *testing.T) {
	s := testStore(t)

	coins, err := s.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, coins)
}

func TestCosmetics_DefaultsForUnknownUser(t *testing.T) {
	s := testStore(t)

	c := s.Cosmetics(context.Background(), "nobody")
	assert.Equal(t, lobby.Cosmetics{}, c)
}

func TestSetCosmetics_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	want := lobby.Cosmetics{CardBack: "midnight", TableTheme: "emerald"}
	require.NoError(t, s.SetCosmetics(ctx, "alice", want))
	assert.Equal(t, want, s.Cosmetics(ctx, "alice"))

	// Clearing one slot leaves the default.
	require.NoError(t, s.SetCosmetics(ctx, "alice", lobby.Cosmetics{CardBack: "midnight"}))
	assert.Equal(t, lobby.Cosmetics{CardBack: "midnight"}, s.Cosmetics(ctx, "alice"))
}
