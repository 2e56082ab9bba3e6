package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries runs the archive statements
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const insertSession = `
INSERT INTO archived_sessions (id, access_code, game_id, class_id, owner_id, status, created_at, started_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, completed_at = EXCLUDED.completed_at, archived_at = now()`

type InsertSessionParams struct {
	ID          uuid.UUID
	AccessCode  string
	GameID      uuid.UUID
	ClassID     uuid.NullUUID
	OwnerID     string
	Status      string
	CreatedAt   time.Time
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

func (q *Queries) InsertSession(ctx context.Context, arg InsertSessionParams) error {
	_, err := q.db.ExecContext(ctx, insertSession,
		arg.ID, arg.AccessCode, arg.GameID, arg.ClassID, arg.OwnerID,
		arg.Status, arg.CreatedAt, arg.StartedAt, arg.CompletedAt)
	return err
}

const deleteSessionRows = `
WITH s AS (DELETE FROM session_standings WHERE session_id = $1),
     t AS (DELETE FROM session_teams WHERE session_id = $1)
DELETE FROM session_submissions WHERE session_id = $1`

// DeleteSessionRows clears child rows so a re-archive replaces them
func (q *Queries) DeleteSessionRows(ctx context.Context, sessionID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteSessionRows, sessionID)
	return err
}

const insertStanding = `
INSERT INTO session_standings (session_id, user_id, display_name, avatar_url, joined_at, score, correct_count, incorrect_count, rank)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

type InsertStandingParams struct {
	SessionID      uuid.UUID
	UserID         string
	DisplayName    string
	AvatarURL      sql.NullString
	JoinedAt       sql.NullTime
	Score          int32
	CorrectCount   int32
	IncorrectCount int32
	Rank           int32
}

func (q *Queries) InsertStanding(ctx context.Context, arg InsertStandingParams) error {
	_, err := q.db.ExecContext(ctx, insertStanding,
		arg.SessionID, arg.UserID, arg.DisplayName, arg.AvatarURL, arg.JoinedAt,
		arg.Score, arg.CorrectCount, arg.IncorrectCount, arg.Rank)
	return err
}

const insertSubmission = `
INSERT INTO session_submissions (id, session_id, user_id, activity_id, content_id, content_index, answer, time_remaining, correct, points_earned, submitted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

type InsertSubmissionParams struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	UserID        string
	ActivityID    uuid.UUID
	ContentID     uuid.UUID
	ContentIndex  int32
	Answer        pqtype.NullRawMessage
	TimeRemaining float64
	Correct       bool
	PointsEarned  int32
	SubmittedAt   time.Time
}

func (q *Queries) InsertSubmission(ctx context.Context, arg InsertSubmissionParams) error {
	_, err := q.db.ExecContext(ctx, insertSubmission,
		arg.ID, arg.SessionID, arg.UserID, arg.ActivityID, arg.ContentID, arg.ContentIndex,
		arg.Answer, arg.TimeRemaining, arg.Correct, arg.PointsEarned, arg.SubmittedAt)
	return err
}

const insertTeam = `
INSERT INTO session_teams (session_id, team_id, activity_id, name, member_ids, score, prompts_done)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

type InsertTeamParams struct {
	SessionID   uuid.UUID
	TeamID      string
	ActivityID  uuid.UUID
	Name        string
	MemberIDs   []string
	Score       int32
	PromptsDone int32
}

func (q *Queries) InsertTeam(ctx context.Context, arg InsertTeamParams) error {
	_, err := q.db.ExecContext(ctx, insertTeam,
		arg.SessionID, arg.TeamID, arg.ActivityID, arg.Name, pq.Array(arg.MemberIDs), arg.Score, arg.PromptsDone)
	return err
}

const getSubmissionAnswer = `SELECT answer FROM session_submissions WHERE id = $1`

func (q *Queries) GetSubmissionAnswer(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	var answer pqtype.NullRawMessage
	if err := q.db.QueryRowContext(ctx, getSubmissionAnswer, id).Scan(&answer); err != nil {
		return nil, err
	}
	if !answer.Valid {
		return nil, nil
	}
	return answer.RawMessage, nil
}

const countArchived = `SELECT count(*) FROM session_standings WHERE session_id = $1`

func (q *Queries) CountStandings(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countArchived, sessionID).Scan(&n)
	return n, err
}
