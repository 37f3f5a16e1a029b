package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"featureflow/internal/stage"
)

const runColumns = "id, operation_id, features_json, concurrency_limit, feature_timeout_ms, overall, created_at, started_at, finished_at, updated_at"

const resultColumns = "run_id, feature, status, error, error_kind, stage, artifact_refs_json, issues_json, started_at, finished_at"

// SaveRunReport upserts the run row and every result row in one transaction.
func (s *SQLiteStore) SaveRunReport(ctx context.Context, report *RunReport) error {
	if report == nil || strings.TrimSpace(report.ID) == "" {
		return errors.New("save run report: id is required")
	}
	features, err := jsonColumn(report.Request.Features, false)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                operation_id = excluded.operation_id,
                features_json = excluded.features_json,
                concurrency_limit = excluded.concurrency_limit,
                feature_timeout_ms = excluded.feature_timeout_ms,
                overall = excluded.overall,
                finished_at = excluded.finished_at,
                updated_at = excluded.updated_at`,
			report.ID,
			report.Request.OperationID,
			features,
			report.Request.ConcurrencyLimit,
			report.Request.FeatureTimeout.Milliseconds(),
			string(report.Overall),
			formatTime(report.Request.CreatedAt),
			formatTime(report.StartedAt),
			nullableTime(report.FinishedAt),
			formatTime(report.UpdatedAt),
		); err != nil {
			return fmt.Errorf("upsert run: %w", err)
		}

		names := make([]string, 0, len(report.Results))
		for name := range report.Results {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if err := upsertResult(ctx, tx, report.ID, report.Results[name]); err != nil {
				return err
			}
		}

		args := make([]any, 0, len(names)+1)
		args = append(args, report.ID)
		query := "DELETE FROM run_results WHERE run_id = ?"
		if len(names) > 0 {
			for _, name := range names {
				args = append(args, name)
			}
			query += " AND feature NOT IN (" + makePlaceholders(len(names)) + ")"
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("prune run results: %w", err)
		}
		return nil
	})
}

func upsertResult(ctx context.Context, tx *sql.Tx, runID string, res FeatureResult) error {
	refs, err := jsonColumn(res.ArtifactRefs, len(res.ArtifactRefs) == 0)
	if err != nil {
		return fmt.Errorf("encode artifact refs: %w", err)
	}
	issues, err := jsonColumn(res.Issues, len(res.Issues) == 0)
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id, feature) DO UPDATE SET
            status = excluded.status,
            error = excluded.error,
            error_kind = excluded.error_kind,
            stage = excluded.stage,
            artifact_refs_json = excluded.artifact_refs_json,
            issues_json = excluded.issues_json,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at`,
		runID,
		res.Feature,
		string(res.Status),
		nullableString(res.Error),
		nullableString(res.ErrorKind),
		nullableString(string(res.Stage)),
		refs,
		issues,
		nullableTime(res.StartedAt),
		nullableTime(res.FinishedAt),
	); err != nil {
		return fmt.Errorf("upsert result %q: %w", res.Feature, err)
	}
	return nil
}

// LoadRunReport returns the stored report with all of its results.
func (s *SQLiteStore) LoadRunReport(ctx context.Context, id string) (*RunReport, error) {
	var report *RunReport
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
		loaded, err := scanRun(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %q: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load run: %w", err)
		}
		results, err := queryResults(ctx, tx, "WHERE run_id = ?", id)
		if err != nil {
			return err
		}
		if found, ok := results[id]; ok {
			loaded.Results = found
		}
		report = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListRuns returns every stored run, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*RunReport, error) {
	var reports []*RunReport
	ctx = ensureContext(ctx)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id DESC")
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		defer rows.Close()
		reports = reports[:0]
		for rows.Next() {
			loaded, err := scanRun(rows)
			if err != nil {
				return fmt.Errorf("scan run: %w", err)
			}
			reports = append(reports, loaded)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		results, err := queryResults(ctx, tx, "", nil)
		if err != nil {
			return err
		}
		for _, report := range reports {
			if found, ok := results[report.ID]; ok {
				report.Results = found
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func queryResults(ctx context.Context, tx *sql.Tx, where string, arg any) (map[string]map[string]FeatureResult, error) {
	query := "SELECT " + resultColumns + " FROM run_results " + where
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
		return nil, fmt.Errorf("query run results: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]FeatureResult)
	for rows.Next() {
		var (
			runID      string
			res        FeatureResult
			statusStr  string
			errMsg     sql.NullString
			errKind    sql.NullString
			stageStr   sql.NullString
			refs       sql.NullString
			issues     sql.NullString
			startedRaw sql.NullString
			finished   sql.NullString
		)
		if err := rows.Scan(&runID, &res.Feature, &statusStr, &errMsg, &errKind, &stageStr, &refs, &issues, &startedRaw, &finished); err != nil {
			return nil, fmt.Errorf("scan run result: %w", err)
		}
		res.Status = FeatureStatus(statusStr)
		res.Error = errMsg.String
		res.ErrorKind = errKind.String
		res.Stage = stage.Stage(stageStr.String)
		res.StartedAt = parseNullTime(startedRaw)
		res.FinishedAt = parseNullTime(finished)
		if err := decodeJSONColumn(refs, &res.ArtifactRefs); err != nil {
			return nil, err
		}
		if err := decodeJSONColumn(issues, &res.Issues); err != nil {
			return nil, err
		}
		if out[runID] == nil {
			out[runID] = make(map[string]FeatureResult)
		}
		out[runID][res.Feature] = res
	}
	return out, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*RunReport, error) {
	var (
		report       RunReport
		featuresJSON sql.NullString
		timeoutMS    int64
		overall      string
		createdRaw   string
		startedRaw   string
		finishedRaw  sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(
		&report.ID,
		&report.Request.OperationID,
		&featuresJSON,
		&report.Request.ConcurrencyLimit,
		&timeoutMS,
		&overall,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	if err := decodeJSONColumn(featuresJSON, &report.Request.Features); err != nil {
		return nil, err
	}
	report.Request.FeatureTimeout = time.Duration(timeoutMS) * time.Millisecond
	report.Overall = OverallStatus(overall)
	if created, err := parseTimeString(createdRaw); err == nil {
		report.Request.CreatedAt = created
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		report.StartedAt = started
	}
	report.FinishedAt = parseNullTime(finishedRaw)
	if updated, err := parseTimeString(updatedRaw); err == nil {
		report.UpdatedAt = updated
	}
	report.Results = map[string]FeatureResult{}
	return &report, nil
}
