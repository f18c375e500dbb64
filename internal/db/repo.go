package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"hawkview/internal/models"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) InsertNotification(ctx context.Context, n models.Notification) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notifications (id,ts,level,source,message,cause) VALUES (?,?,?,?,?,?)`,
		n.ID, n.TS.UTC(), string(n.Level), n.Source, n.Message, n.Cause)
	return err
}

// RecentNotifications returns the newest entries first. An empty source matches all.
func (r *Repository) RecentNotifications(ctx context.Context, source string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	where := []string{"1=1"}
	args := []any{}
	if source = strings.TrimSpace(source); source != "" {
		where = append(where, "source = ?")
		args = append(args, source)
	}
	args = append(args, limit)
	rows, err := r.db.QueryContext(ctx, `SELECT id,ts,level,source,message,cause FROM notifications WHERE `+
		strings.Join(where, " AND ")+` ORDER BY ts DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Notification, 0, limit)
	for rows.Next() {
		var n models.Notification
		var level string
		if err := rows.Scan(&n.ID, &n.TS, &level, &n.Source, &n.Message, &n.Cause); err != nil {
			return nil, err
		}
		n.Level = models.NotificationLevel(level)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return n, nil
}

func (r *Repository) SaveTelegramSettings(ctx context.Context, token, chatID string) error {
	for k, v := range map[string]string{"telegram_token": token, "telegram_chat_id": chatID} {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO settings(key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) LoadTelegramSettings(ctx context.Context) (token, chatID string, err error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key,value FROM settings WHERE key IN ('telegram_token','telegram_chat_id')`)
	if err != nil {
		return "", "", err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return "", "", err
		}
		switch k {
		case "telegram_token":
			token = v
		case "telegram_chat_id":
			chatID = v
		}
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", "", err
	}
	return token, chatID, nil
}
