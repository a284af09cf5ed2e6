package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

// SettingsRepository stocke une ligne par champ JSON de domain.Settings (clé = nom du champ).
// Un champ absent de la table, ou illisible, garde sa valeur par défaut.
type SettingsRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db, now: time.Now}
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.Settings, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value_json FROM settings`)
	if err != nil {
		return domain.Settings{}, err
	}
	defer rows.Close()

	s := domain.DefaultSettings()
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return domain.Settings{}, err
		}
		applySetting(&s, key, value)
	}
	return s, rows.Err()
}

// applySetting décode un seul champ par-dessus s; une valeur invalide est ignorée.
func applySetting(s *domain.Settings, key string, value []byte) {
	doc, err := json.Marshal(map[string]json.RawMessage{key: value})
	if err != nil {
		return
	}
	next := *s
	if err := json.Unmarshal(doc, &next); err != nil {
		return
	}
	*s = next
}

func (r *SettingsRepository) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	fields, err := settingsFields(settings)
	if err != nil {
		return domain.Settings{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settings{}, err
	}
	defer func() { _ = tx.Rollback() }()

	updatedAt := formatTime(r.now())
	for _, f := range fields {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settings(key, value_json, updated_at)
			VALUES(?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at
		`, f.key, []byte(f.value), updatedAt); err != nil {
			return domain.Settings{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Settings{}, err
	}
	return r.Get(ctx)
}

type settingField struct {
	key   string
	value json.RawMessage
}

// settingsFields éclate les réglages en champs, triés pour des écritures déterministes.
func settingsFields(settings domain.Settings) ([]settingField, error) {
	b, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	out := make([]settingField, 0, len(doc))
	for k, v := range doc {
		out = append(out, settingField{key: k, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out, nil
}
