package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/readq/internal/queue"
)

const itemColumns = `id, source_document_id, title, item_type, due_date, estimated_minutes, tags,
	category, priority_rating, priority_slider, progress_percent, suspended, added_at`

// UpsertItem inserts it or replaces the stored snapshot with the same id.
// The original added_at is kept on replace.
func (s *Store) UpsertItem(it queue.Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	tags, err := json.Marshal(nonNil(it.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	var due any
	if it.DueDate != nil {
		due = formatTime(*it.DueDate)
	}
	_, err = s.db.Exec(`
		INSERT INTO queue_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_document_id = excluded.source_document_id,
			title = excluded.title,
			item_type = excluded.item_type,
			due_date = excluded.due_date,
			estimated_minutes = excluded.estimated_minutes,
			tags = excluded.tags,
			category = excluded.category,
			priority_rating = excluded.priority_rating,
			priority_slider = excluded.priority_slider,
			progress_percent = excluded.progress_percent,
			suspended = excluded.suspended`,
		it.ID, it.SourceDocumentID, it.Title, it.ItemType.String(), due, it.EstimatedMinutes, string(tags),
		it.Category, it.PriorityRating, it.PrioritySlider, it.ProgressPercent, it.Suspended, formatTime(s.now()),
	)
	return err
}

func scanItem(row rowScanner) (StoredItem, error) {
	var it StoredItem
	var typ, tags, addedAt string
	var due sql.NullString
	if err := row.Scan(&it.ID, &it.SourceDocumentID, &it.Title, &typ, &due, &it.EstimatedMinutes, &tags,
		&it.Category, &it.PriorityRating, &it.PrioritySlider, &it.ProgressPercent, &it.Suspended, &addedAt); err != nil {
		return StoredItem{}, err
	}
	var err error
	if it.ItemType, err = queue.ParseItemType(typ); err != nil {
		return StoredItem{}, err
	}
	if it.DueDate, err = parseNullTime("due_date", due); err != nil {
		return StoredItem{}, err
	}
	if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
		return StoredItem{}, fmt.Errorf("decoding tags of %s: %w", it.ID, err)
	}
	if it.AddedAt, err = parseTime("added_at", addedAt); err != nil {
		return StoredItem{}, err
	}
	return it, nil
}

// GetItem returns one stored item.
func (s *Store) GetItem(id string) (StoredItem, error) {
	it, err := scanItem(s.db.QueryRow(`SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return StoredItem{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return it, err
}

// ListItems returns every stored item, oldest first.
func (s *Store) ListItems() ([]StoredItem, error) {
	rows, err := s.db.Query(`SELECT ` + itemColumns + ` FROM queue_items ORDER BY added_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SetSuspended sets the suspended flag of one item.
func (s *Store) SetSuspended(id string, suspended bool) error {
	res, err := s.db.Exec(`UPDATE queue_items SET suspended = ? WHERE id = ?`, suspended, id)
	if err != nil {
		return err
	}
	return affected(res, "item "+id)
}

// DeleteItem removes an item with its scheduling state and history.
func (s *Store) DeleteItem(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := affected(res, "item "+id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM scheduling_states WHERE item_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM review_logs WHERE item_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Postpone moves an item's due date days forward, counting from now when it
// has none, and returns the new due date.
func (s *Store) Postpone(id string, days int) (time.Time, error) {
	it, err := s.GetItem(id)
	if err != nil {
		return time.Time{}, err
	}
	base := s.now()
	if it.DueDate != nil {
		base = *it.DueDate
	}
	due := base.Add(time.Duration(days) * 24 * time.Hour).UTC().Truncate(time.Second)
	return due, s.SetDue(id, due)
}

// SetDue overwrites an item's due date.
func (s *Store) SetDue(id string, due time.Time) error {
	res, err := s.db.Exec(`UPDATE queue_items SET due_date = ? WHERE id = ?`, formatTime(due), id)
	if err != nil {
		return err
	}
	return affected(res, "item "+id)
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
