package storage

import (
	"encoding/json"
	"fmt"
)

// UpsertRSSItem stores a feed entry. An existing entry keeps its read flag.
func (s *Store) UpsertRSSItem(it RSSItem) error {
	tags, err := json.Marshal(nonNil(it.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO rss_items (feed_id, id, title, category, tags, estimated_minutes, read, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			tags = excluded.tags,
			estimated_minutes = excluded.estimated_minutes,
			published_at = excluded.published_at`,
		it.FeedID, it.ID, it.Title, it.Category, string(tags), it.EstimatedMinutes, it.Read, formatTime(it.PublishedAt),
	)
	return err
}

// ListRSSItems returns feed entries, newest first.
func (s *Store) ListRSSItems(unreadOnly bool) ([]RSSItem, error) {
	query := `SELECT feed_id, id, title, category, tags, estimated_minutes, read, published_at FROM rss_items`
	if unreadOnly {
		query += ` WHERE read = 0`
	}
	rows, err := s.db.Query(query + ` ORDER BY published_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RSSItem
	for rows.Next() {
		var it RSSItem
		var tags, published string
		if err := rows.Scan(&it.FeedID, &it.ID, &it.Title, &it.Category, &tags, &it.EstimatedMinutes, &it.Read, &published); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of %s: %w", it.ID, err)
		}
		if it.PublishedAt, err = parseTime("published_at", published); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// MarkRead sets the read flag of one feed entry.
func (s *Store) MarkRead(feedID, itemID string, read bool) error {
	res, err := s.db.Exec(`UPDATE rss_items SET read = ? WHERE feed_id = ? AND id = ?`, read, feedID, itemID)
	if err != nil {
		return err
	}
	return affected(res, "rss item "+feedID+"/"+itemID)
}
