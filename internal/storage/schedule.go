package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kalambet/readq/internal/optimizer"
	"github.com/kalambet/readq/internal/srs"
)

// GetSchedule returns the scheduling state of an item.
func (s *Store) GetSchedule(itemID string) (srs.State, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state_json FROM scheduling_states WHERE item_id = ?`, itemID).Scan(&raw)
	if err == sql.ErrNoRows {
		return srs.State{}, fmt.Errorf("schedule of %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return srs.State{}, err
	}
	var st srs.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return srs.State{}, fmt.Errorf("decoding schedule of %s: %w", itemID, err)
	}
	return st, nil
}

// ListSchedules returns every stored scheduling state ordered by item id.
func (s *Store) ListSchedules() ([]optimizer.ItemSchedule, error) {
	rows, err := s.db.Query(`SELECT item_id, state_json FROM scheduling_states ORDER BY item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []optimizer.ItemSchedule
	for rows.Next() {
		var is optimizer.ItemSchedule
		var raw string
		if err := rows.Scan(&is.ItemID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &is.State); err != nil {
			return nil, fmt.Errorf("decoding schedule of %s: %w", is.ItemID, err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

// RecordReview stores the state produced by a review, appends the review to
// the history and moves the item's due date, all in one transaction.
func (s *Store) RecordReview(itemID string, st srs.State, review optimizer.Review) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning review transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	if _, err := tx.Exec(`
		INSERT INTO scheduling_states (item_id, state_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		itemID, string(raw), now); err != nil {
		return fmt.Errorf("saving schedule: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO review_logs (item_id, rating, reviewed_at) VALUES (?, ?, ?)`,
		itemID, int(review.Rating), formatTime(review.ReviewedAt)); err != nil {
		return fmt.Errorf("appending review: %w", err)
	}
	if _, err := tx.Exec(`UPDATE queue_items SET due_date = ? WHERE id = ?`, formatTime(st.DueDate), itemID); err != nil {
		return fmt.Errorf("moving due date: %w", err)
	}
	return tx.Commit()
}

// ListReviews returns the review history in chronological order.
func (s *Store) ListReviews() ([]optimizer.Review, error) {
	rows, err := s.db.Query(`SELECT item_id, rating, reviewed_at FROM review_logs ORDER BY reviewed_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []optimizer.Review
	for rows.Next() {
		var r optimizer.Review
		var rating int
		var at string
		if err := rows.Scan(&r.ItemID, &rating, &at); err != nil {
			return nil, err
		}
		r.Rating = srs.Rating(rating)
		if r.ReviewedAt, err = parseTime("reviewed_at", at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadPosition returns the last stream position saved under key.
func (s *Store) LoadPosition(ctx context.Context, key string) (int, bool, error) {
	var pos int
	err := s.db.QueryRowContext(ctx, `SELECT position FROM session_positions WHERE session_key = ?`, key).Scan(&pos)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pos, true, nil
}

// SavePosition records the stream position for key.
func (s *Store) SavePosition(ctx context.Context, key string, position int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_positions (session_key, position, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		key, position, formatTime(s.now()))
	return err
}
