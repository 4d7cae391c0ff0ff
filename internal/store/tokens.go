package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/udisondev/w3ctl/internal/model"
)

// SaveGameTokens durably records every player's connect token in tokens for
// gameID in one transaction, called from the game actor's node-create-success path before the token
// is handed to the player (spec §7 "store only in memory plus
// persistence, never log").
func (s *Store) SaveGameTokens(ctx context.Context, gameID model.GameID, tokens map[model.PlayerID][16]byte) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for playerID, token := range tokens {
			_, err := tx.Exec(ctx,
				`INSERT INTO game_tokens (game_id, player_id, token)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (game_id, player_id) DO UPDATE SET token = EXCLUDED.token`,
				int32(gameID), int32(playerID), token[:],
			)
			if err != nil {
				return fmt.Errorf("store: saving token for game %d player %d: %w", gameID, playerID, err)
			}
		}
		return nil
	})
}

// LoadGameTokens returns every token on file for gameID, keyed by player.
// Used to re-deliver GamePlayerToken to a player who reconnects after a
// game was already Created.
func (s *Store) LoadGameTokens(ctx context.Context, gameID model.GameID) (map[model.PlayerID][16]byte, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT player_id, token FROM game_tokens WHERE game_id = $1`, int32(gameID),
	)
	if err != nil {
		return nil, fmt.Errorf("store: loading tokens for game %d: %w", gameID, err)
	}
	defer rows.Close()

	out := make(map[model.PlayerID][16]byte)
	for rows.Next() {
		var playerID int32
		var raw []byte
		if err := rows.Scan(&playerID, &raw); err != nil {
			return nil, fmt.Errorf("store: scanning token row: %w", err)
		}
		var tok [16]byte
		copy(tok[:], raw)
		out[model.PlayerID(playerID)] = tok
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating token rows: %w", err)
	}
	return out, nil
}
