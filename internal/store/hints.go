package store

import (
	"fmt"

	"github.com/kilupskalvis/ovc/internal/models"
)

// SaveHint upserts the merge hint for a node kind and field.
func (r *Registry) SaveHint(kind models.NodeKind, field string, hint models.MergeHint) error {
	if err := hint.Validate(); err != nil {
		return fmt.Errorf("hint for %s.%s: %w", kind, field, err)
	}

	_, err := r.db.Exec(`
		INSERT INTO merge_hints (node_kind, field, strategy, identity_key, conflict_policy, preserve_order)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (node_kind, field) DO UPDATE SET
			strategy = excluded.strategy,
			identity_key = excluded.identity_key,
			conflict_policy = excluded.conflict_policy,
			preserve_order = excluded.preserve_order`,
		string(kind), field, string(hint.Strategy), hint.IdentityKey,
		string(hint.ConflictPolicy), hint.PreserveOrder)
	if err != nil {
		return fmt.Errorf("save hint: %w", err)
	}
	return nil
}

// LoadHints reads all persisted hints layered over the built-in defaults.
// Rows with illegal enum values are rejected here, at load time.
func (r *Registry) LoadHints() (models.HintSet, error) {
	hints := models.DefaultHints()

	rows, err := r.db.Query(`SELECT node_kind, field, strategy, identity_key, conflict_policy, preserve_order FROM merge_hints`)
	if err != nil {
		return nil, fmt.Errorf("load hints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, field, strategy, identityKey, policy string
		var preserveOrder bool
		if err := rows.Scan(&kind, &field, &strategy, &identityKey, &policy, &preserveOrder); err != nil {
			return nil, fmt.Errorf("scan hint: %w", err)
		}

		hint := models.MergeHint{
			Strategy:       models.MergeStrategy(strategy),
			IdentityKey:    identityKey,
			ConflictPolicy: models.ConflictPolicy(policy),
			PreserveOrder:  preserveOrder,
		}
		if err := hint.Validate(); err != nil {
			return nil, fmt.Errorf("hint for %s.%s: %w", kind, field, err)
		}

		hints.Set(models.NodeKind(kind), field, hint)
	}
	return hints, rows.Err()
}
