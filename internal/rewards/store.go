package rewards

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	"github.com/greenfelt/greenfelt/internal/lobby"
)

// Coin payouts per win. Wins also bump the per-game counter.
const (
	PokerWinCoins = 100
	UnoWinCoins   = 50
)

// Timeouts for store I/O. Awards run off the lobby lock so a slow disk
// never stalls gameplay; cosmetic fetches fall back to defaults.
const (
	awardTimeout    = 5 * time.Second
	cosmeticTimeout = 2500 * time.Millisecond
)

// Store persists coins, win counters and equipped cosmetics in SQLite.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (or creates) the rewards database at path and bootstraps the
// schema.
func Open(path string, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open rewards db: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger.WithPrefix("rewards")}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			coins INTEGER NOT NULL DEFAULT 0,
			wins_poker INTEGER NOT NULL DEFAULT 0,
			wins_uno INTEGER NOT NULL DEFAULT 0,
			card_back TEXT,
			table_theme TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

// AwardPokerWin credits a poker hand win to each winner.
func (s *Store) AwardPokerWin(ctx context.Context, userIDs []string) error {
	return s.award(ctx, userIDs, PokerWinCoins, "wins_poker")
}

// AwardUnoWin credits an UNO game win.
func (s *Store) AwardUnoWin(ctx context.Context, userIDs []string) error {
	return s.award(ctx, userIDs, UnoWinCoins, "wins_uno")
}

func (s *Store) award(ctx context.Context, userIDs []string, coins int, winColumn string) error {
	ctx, cancel := context.WithTimeout(ctx, awardTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin award tx: %w", err)
	}
	defer tx.Rollback()

	// winColumn is one of our own constants, never user input.
	query := fmt.Sprintf(`
		INSERT INTO users (id, coins, %[1]s)
		VALUES (?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET coins = coins + ?, %[1]s = %[1]s + 1
	`, winColumn)

	for _, id := range userIDs {
		if _, err := tx.ExecContext(ctx, query, id, coins, coins); err != nil {
			return fmt.Errorf("award win to %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit award tx: %w", err)
	}
	s.logger.Info("Win awarded", "winners", userIDs, "coins", coins)
	return nil
}

// Balance returns a user's coin balance. Unknown users have zero coins.
func (s *Store) Balance(ctx context.Context, userID string) (int, error) {
	var coins int
	err := s.db.QueryRowContext(ctx, "SELECT coins FROM users WHERE id = ?", userID).Scan(&coins)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return coins, nil
}

// Wins returns a user's win counters.
func (s *Store) Wins(ctx context.Context, userID string) (poker, uno int, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT wins_poker, wins_uno FROM users WHERE id = ?", userID).Scan(&poker, &uno)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("query wins: %w", err)
	}
	return poker, uno, nil
}

// Cosmetics fetches a user's equipped cosmetics with a bounded timeout.
// Any failure, including timeout, degrades to defaults so joins are never
// delayed past the bound.
func (s *Store) Cosmetics(ctx context.Context, userID string) lobby.Cosmetics {
	ctx, cancel := context.WithTimeout(ctx, cosmeticTimeout)
	defer cancel()

	var cardBack, tableTheme sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT card_back, table_theme FROM users WHERE id = ?", userID,
	).Scan(&cardBack, &tableTheme)
	if err != nil && err != sql.ErrNoRows {
		s.logger.Warn("Cosmetic fetch failed, using defaults", "user", userID, "err", err)
		return lobby.Cosmetics{}
	}

	var c lobby.Cosmetics
	if cardBack.Valid {
		c.CardBack = cardBack.String
	}
	if tableTheme.Valid {
		c.TableTheme = tableTheme.String
	}
	return c
}

// SetCosmetics updates a user's equipped cosmetics. Empty strings clear the
// slot.
func (s *Store) SetCosmetics(ctx context.Context, userID string, c lobby.Cosmetics) error {
	ctx, cancel := context.WithTimeout(ctx, awardTimeout)
	defer cancel()

	cardBack := sql.NullString{String: c.CardBack, Valid: c.CardBack != ""}
	tableTheme := sql.NullString{String: c.TableTheme, Valid: c.TableTheme != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, card_back, table_theme)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET card_back = ?, table_theme = ?
	`, userID, cardBack, tableTheme, cardBack, tableTheme)
	if err != nil {
		return fmt.Errorf("set cosmetics: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
