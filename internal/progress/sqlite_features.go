package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"featureflow/internal/stage"
)

const featureColumns = "name, stage, blocked_from, block_reason, last_validation_json, revision, created_at, updated_at"

const recordColumns = "feature, seq, stage, kind, entered_at, artifact_refs_json, validation_json, supersedes_json, note"

// SaveFeatureState persists the feature row and appends any history records
// not yet stored, in one transaction.
func (s *SQLiteStore) SaveFeatureState(ctx context.Context, state *FeatureState) error {
	if state == nil || strings.TrimSpace(state.Name) == "" {
		return errors.New("save feature state: name is required")
	}
	lastValidation, err := jsonColumn(state.LastValidation, state.LastValidation == nil)
	if err != nil {
		return fmt.Errorf("encode last validation: %w", err)
	}

	ctx = ensureContext(ctx)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var stored int64
		err := tx.QueryRowContext(ctx, "SELECT revision FROM features WHERE name = ?", state.Name).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if state.Revision != 0 {
				return fmt.Errorf("%w: feature %q is no longer stored", ErrConflict, state.Name)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO features (`+featureColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				state.Name,
				string(state.Stage),
				nullableString(string(state.BlockedFrom)),
				nullableString(state.BlockReason),
				lastValidation,
				state.Revision+1,
				formatTime(state.CreatedAt),
				formatTime(state.UpdatedAt),
			); err != nil {
				return fmt.Errorf("insert feature: %w", err)
			}
		case err != nil:
			return fmt.Errorf("read feature revision: %w", err)
		default:
			if stored != state.Revision {
				return fmt.Errorf("%w: feature %q is at revision %d, save was based on %d", ErrConflict, state.Name, stored, state.Revision)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE features SET stage = ?, blocked_from = ?, block_reason = ?, last_validation_json = ?,
                    revision = ?, updated_at = ? WHERE name = ?`,
				string(state.Stage),
				nullableString(string(state.BlockedFrom)),
				nullableString(state.BlockReason),
				lastValidation,
				state.Revision+1,
				formatTime(state.UpdatedAt),
				state.Name,
			); err != nil {
				return fmt.Errorf("update feature: %w", err)
			}
		}
		return appendRecords(ctx, tx, state)
	})
	if err != nil {
		return err
	}
	state.Revision++
	return nil
}

func appendRecords(ctx context.Context, tx *sql.Tx, state *FeatureState) error {
	var maxSeq int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM stage_records WHERE feature = ?", state.Name,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("read history length: %w", err)
	}
	if n := len(state.History); n > 0 && state.History[n-1].Seq < maxSeq {
		return fmt.Errorf("%w: feature %q history is behind the stored history", ErrConflict, state.Name)
	}
	for _, rec := range state.History {
		if rec.Seq <= maxSeq {
			continue
		}
		refs, err := jsonColumn(rec.ArtifactRefs, len(rec.ArtifactRefs) == 0)
		if err != nil {
			return fmt.Errorf("encode artifact refs: %w", err)
		}
		validation, err := jsonColumn(rec.Validation, rec.Validation == nil)
		if err != nil {
			return fmt.Errorf("encode validation: %w", err)
		}
		supersedes, err := jsonColumn(rec.Supersedes, len(rec.Supersedes) == 0)
		if err != nil {
			return fmt.Errorf("encode supersedes: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stage_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			state.Name,
			rec.Seq,
			string(rec.Stage),
			string(rec.Kind),
			formatTime(rec.EnteredAt),
			refs,
			validation,
			supersedes,
			nullableString(rec.Note),
		); err != nil {
			return fmt.Errorf("insert stage record %d: %w", rec.Seq, err)
		}
	}
	return nil
}

// LoadFeatureState returns the stored feature and its full history.
func (s *SQLiteStore) LoadFeatureState(ctx context.Context, name string) (*FeatureState, error) {
	var state *FeatureState
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+featureColumns+" FROM features WHERE name = ?", name)
		loaded, err := scanFeature(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("feature %q: %w", name, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load feature: %w", err)
		}
		history, err := queryRecords(ctx, tx, "WHERE feature = ?", name)
		if err != nil {
			return err
		}
		loaded.History = history[name]
		state = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ListFeatures returns every stored feature ordered by name.
func (s *SQLiteStore) ListFeatures(ctx context.Context) ([]*FeatureState, error) {
	var states []*FeatureState
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT "+featureColumns+" FROM features ORDER BY name")
		if err != nil {
			return fmt.Errorf("list features: %w", err)
		}
		defer rows.Close()
		states = states[:0]
		for rows.Next() {
			loaded, err := scanFeature(rows)
			if err != nil {
				return fmt.Errorf("scan feature: %w", err)
			}
			states = append(states, loaded)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		history, err := queryRecords(ctx, tx, "", nil)
		if err != nil {
			return err
		}
		for _, st := range states {
			st.History = history[st.Name]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}

func queryRecords(ctx context.Context, tx *sql.Tx, where string, arg any) (map[string][]StageRecord, error) {
	query := "SELECT " + recordColumns + " FROM stage_records " + where + " ORDER BY feature, seq"
	var (
		rows *sql.Rows
		err  error
	)
	if arg != nil {
		rows, err = tx.QueryContext(ctx, query, arg)
	} else {
		rows, err = tx.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("query stage records: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]StageRecord)
	for rows.Next() {
		var (
			feature    string
			rec        StageRecord
			stageStr   string
			kindStr    string
			enteredRaw string
			refs       sql.NullString
			validation sql.NullString
			supersedes sql.NullString
			note       sql.NullString
		)
		if err := rows.Scan(&feature, &rec.Seq, &stageStr, &kindStr, &enteredRaw, &refs, &validation, &supersedes, &note); err != nil {
			return nil, fmt.Errorf("scan stage record: %w", err)
		}
		rec.Stage = stage.Stage(stageStr)
		rec.Kind = RecordKind(kindStr)
		rec.Note = note.String
		if entered, err := parseTimeString(enteredRaw); err == nil {
			rec.EnteredAt = entered
		}
		if err := decodeJSONColumn(refs, &rec.ArtifactRefs); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(validation, &rec.Validation); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(supersedes, &rec.Supersedes); err != nil {
			return nil, err
		}
		out[feature] = append(out[feature], rec)
	}
	return out, rows.Err()
}

func scanFeature(scanner interface{ Scan(dest ...any) error }) (*FeatureState, error) {
	var (
		name           string
		stageStr       string
		blockedFrom    sql.NullString
		blockReason    sql.NullString
		lastValidation sql.NullString
		revision       int64
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(&name, &stageStr, &blockedFrom, &blockReason, &lastValidation, &revision, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	state := &FeatureState{
		Name:        name,
		Stage:       stage.Stage(stageStr),
		BlockedFrom: stage.Stage(blockedFrom.String),
		BlockReason: blockReason.String,
		Revision:    revision,
	}
	if err := decodeJSONColumn(lastValidation, &state.LastValidation); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		state.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		state.UpdatedAt = updated
	}
	return state, nil
}
