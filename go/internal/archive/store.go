// Package archive stores completed sessions in Postgres.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schema string

// Store writes session archives
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres with the lib/pq driver
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("archive database connected")
	return NewStore(db), nil
}

// Migrate creates the archive tables
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate archive schema: %w", err)
	}
	log.Info().Msg("archive tables migrated")
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// ArchiveSession writes the session, standings, submissions and teams in one
// transaction. Archiving the same session again replaces its rows.
func (s *Store) ArchiveSession(ctx context.Context, rec *models.SessionArchive) error {
	rows := buildRows(rec)
	err := sqlutil.Run(ctx, s.db, New(s.db).WithTx, func(q *Queries) error {
		if err := q.InsertSession(ctx, rows.session); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if err := q.DeleteSessionRows(ctx, rows.session.ID); err != nil {
			return fmt.Errorf("clear session rows: %w", err)
		}
		for _, st := range rows.standings {
			if err := q.InsertStanding(ctx, st); err != nil {
				return fmt.Errorf("insert standing %s: %w", st.UserID, err)
			}
		}
		for _, sub := range rows.submissions {
			if err := q.InsertSubmission(ctx, sub); err != nil {
				return fmt.Errorf("insert submission %s: %w", sub.ID, err)
			}
		}
		for _, team := range rows.teams {
			if err := q.InsertTeam(ctx, team); err != nil {
				return fmt.Errorf("insert team %s: %w", team.TeamID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to archive session %s: %w", rec.Session.AccessCode, err)
	}

	log.Info().
		Str("session_id", rec.Session.ID.String()).
		Str("access_code", rec.Session.AccessCode).
		Int("standings", len(rows.standings)).
		Int("submissions", len(rows.submissions)).
		Msg("session archived")
	return nil
}

type archiveRows struct {
	session     InsertSessionParams
	standings   []InsertStandingParams
	submissions []InsertSubmissionParams
	teams       []InsertTeamParams
}

// buildRows flattens an archive into insert parameters. Every leaderboard entry
// gets a standing; roster details are attached when the participant is still present.
func buildRows(rec *models.SessionArchive) archiveRows {
	info := rec.Session
	rows := archiveRows{
		session: InsertSessionParams{
			ID:          info.ID,
			AccessCode:  info.AccessCode,
			GameID:      info.GameID,
			ClassID:     sqlutil.ToNullUUID(info.ClassID),
			OwnerID:     info.OwnerID,
			Status:      string(info.Status),
			CreatedAt:   info.CreatedAt,
			StartedAt:   sqlutil.ToSqlTime(info.StartedAt),
			CompletedAt: sqlutil.ToSqlTime(info.CompletedAt),
		},
	}

	roster := make(map[string]models.Participant, len(rec.Participants))
	for _, p := range rec.Participants {
		roster[p.UserID] = p
	}
	for _, e := range rec.Leaderboard {
		st := InsertStandingParams{
			SessionID:      info.ID,
			UserID:         e.UserID,
			DisplayName:    e.DisplayName,
			Score:          int32(e.Score),
			CorrectCount:   int32(e.CorrectCount),
			IncorrectCount: int32(e.IncorrectCount),
			Rank:           int32(e.Rank),
		}
		if p, ok := roster[e.UserID]; ok {
			st.AvatarURL = sqlutil.ToSqlString(p.AvatarURL)
			st.JoinedAt = sqlutil.ToSqlTime(&p.JoinedAt)
		}
		rows.standings = append(rows.standings, st)
	}

	for _, sub := range rec.Submissions {
		rows.submissions = append(rows.submissions, InsertSubmissionParams{
			ID:            sub.ID,
			SessionID:     info.ID,
			UserID:        sub.UserID,
			ActivityID:    sub.ActivityID,
			ContentID:     sub.ContentID,
			ContentIndex:  int32(sub.ContentIndex),
			Answer:        sqlutil.ToNullRawMessage(sub.Answer),
			TimeRemaining: sub.TimeRemaining,
			Correct:       sub.Correct,
			PointsEarned:  int32(sub.PointsEarned),
			SubmittedAt:   sub.SubmittedAt,
		})
	}

	for _, t := range rec.Teams {
		done := t.PromptIndex
		if t.Done {
			done = t.PromptCount
		}
		rows.teams = append(rows.teams, InsertTeamParams{
			SessionID:   info.ID,
			TeamID:      t.ID,
			ActivityID:  t.ActivityID,
			Name:        t.Name,
			MemberIDs:   t.MemberIDs,
			Score:       int32(t.Score),
			PromptsDone: int32(done),
		})
	}
	return rows
}
