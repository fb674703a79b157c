package storage

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/ramonehamilton/gammatrain/internal/extract"
)

// MatchRepository stores recorded decisions by feature name.
type MatchRepository struct {
	db *sql.DB
}

// NewMatchRepository creates a match repository on an open connection.
func NewMatchRepository(db *sql.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Save stores records in one transaction, tagging them with source.
// A repeated name within a candidate is stored once with its count as degree.
func (r *MatchRepository) Save(ctx context.Context, source string, records ...*extract.Record) error {
	if len(records) == 0 {
		return nil
	}
	return withTransaction(ctx, r.db, func(tx *sql.Tx) error {
		matchStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO matches (teams, winner, weight, source, created_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare match insert: %w", err)
		}
		defer matchStmt.Close()

		featureStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO match_features (match_id, team, feature, degree) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare feature insert: %w", err)
		}
		defer featureStmt.Close()

		now := unixMillis(time.Now())
		for i, rec := range records {
			weight := rec.Weight
			if weight == 0 {
				weight = 1
			}
			res, err := matchStmt.ExecContext(ctx, len(rec.Candidates), rec.Chosen, weight, source, now)
			if err != nil {
				return fmt.Errorf("failed to insert record %d: %w", i, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get match id: %w", err)
			}

			for team, names := range rec.Candidates {
				for _, c := range countNames(names) {
					if _, err := featureStmt.ExecContext(ctx, id, team, c.name, c.count); err != nil {
						return fmt.Errorf("failed to insert feature %s of record %d: %w", c.name, i, err)
					}
				}
			}
		}
		return nil
	})
}

type nameCount struct {
	name  string
	count int
}

func countNames(names []string) []nameCount {
	counts := make(map[string]int, len(names))
	for _, n := range names {
		counts[n]++
	}
	out := make([]nameCount, 0, len(counts))
	for n, c := range counts {
		out = append(out, nameCount{name: n, count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Count returns the number of stored matches.
func (r *MatchRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return n, nil
}

// Records streams every stored match in insertion order. Feature names
// within a candidate come back sorted, repeated once per degree.
func (r *MatchRepository) Records(ctx context.Context) iter.Seq2[*extract.Record, error] {
	return func(yield func(*extract.Record, error) bool) {
		rows, err := r.db.QueryContext(ctx, `
			SELECT m.id, m.teams, m.winner, m.weight, f.team, f.feature, f.degree
			FROM matches m
			LEFT JOIN match_features f ON f.match_id = m.id
			ORDER BY m.id, f.team, f.feature
		`)
		if err != nil {
			yield(nil, fmt.Errorf("failed to query matches: %w", err))
			return
		}
		defer rows.Close()

		var (
			current   *extract.Record
			currentID int64 = -1
		)
		for rows.Next() {
			var (
				id, teams, winner int64
				weight            float64
				team, degree      sql.NullInt64
				feature           sql.NullString
			)
			if err := rows.Scan(&id, &teams, &winner, &weight, &team, &feature, &degree); err != nil {
				yield(nil, fmt.Errorf("failed to scan match: %w", err))
				return
			}
			if id != currentID {
				if current != nil && !yield(current, nil) {
					return
				}
				current = &extract.Record{
					Candidates: make([][]string, teams),
					Chosen:     int(winner),
					Weight:     weight,
				}
				currentID = id
			}
			if !feature.Valid || team.Int64 < 0 || team.Int64 >= teams {
				continue
			}
			for k := int64(0); k < degree.Int64; k++ {
				current.Candidates[team.Int64] = append(current.Candidates[team.Int64], feature.String)
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to iterate matches: %w", err))
			return
		}
		if current != nil {
			yield(current, nil)
		}
	}
}

// FeatureCount is a feature name with its total degree across stored matches.
type FeatureCount struct {
	Feature string
	Matches int
	Degree  int
}

// FeatureCounts returns per-feature occurrence totals, most frequent first.
func (r *MatchRepository) FeatureCounts(ctx context.Context, limit int) ([]FeatureCount, error) {
	query := `
		SELECT feature, COUNT(DISTINCT match_id), SUM(degree)
		FROM match_features
		GROUP BY feature
		ORDER BY SUM(degree) DESC, feature
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature counts: %w", err)
	}
	defer rows.Close()

	var out []FeatureCount
	for rows.Next() {
		var fc FeatureCount
		if err := rows.Scan(&fc.Feature, &fc.Matches, &fc.Degree); err != nil {
			return nil, fmt.Errorf("failed to scan feature count: %w", err)
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// DeleteSource removes every match imported with source and returns how many went.
func (r *MatchRepository) DeleteSource(ctx context.Context, source string) (int64, error) {
	var deleted int64
	err := withTransaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM match_features WHERE match_id IN (SELECT id FROM matches WHERE source = ?)`, source); err != nil {
			return fmt.Errorf("failed to delete features: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM matches WHERE source = ?`, source)
		if err != nil {
			return fmt.Errorf("failed to delete matches: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
