package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/codemeet/internal/model"
)

const interviewColumns = `id, title, description, start_time, end_time, status, call_id,
	candidate_id, interviewer_ids, created_at, updated_at`

// PostgresInterviewRepo はPostgreSQLを使用した面接リポジトリ。
type PostgresInterviewRepo struct {
	db *sql.DB
}

// NewPostgresInterviewRepo はPostgresInterviewRepoを生成する。
func NewPostgresInterviewRepo(db *sql.DB) *PostgresInterviewRepo {
	return &PostgresInterviewRepo{db: db}
}

// Create は面接を作成する。
func (r *PostgresInterviewRepo) Create(ctx context.Context, iv *model.Interview) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO interviews (id, title, description, start_time, status, call_id,
		                         candidate_id, interviewer_ids, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		iv.ID, iv.Title, iv.Description, iv.StartTime, string(iv.Status), iv.CallID,
		iv.CandidateID, pq.Array(iv.InterviewerIDs), iv.CreatedAt, iv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create interview: %w", err)
	}
	return nil
}

// FindByID は面接を取得する。見つからない場合はnilを返す。
func (r *PostgresInterviewRepo) FindByID(ctx context.Context, id string) (*model.Interview, error) {
	return r.findOne(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id)
}

// FindByCallID は通話IDに紐づく面接を取得する。見つからない場合はnilを返す。
func (r *PostgresInterviewRepo) FindByCallID(ctx context.Context, callID string) (*model.Interview, error) {
	return r.findOne(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE call_id = $1`, callID)
}

func (r *PostgresInterviewRepo) findOne(ctx context.Context, query, arg string) (*model.Interview, error) {
	iv, err := scanInterview(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find interview: %w", err)
	}
	return iv, nil
}

// ListAll は全面接を開始日時順に返す。
func (r *PostgresInterviewRepo) ListAll(ctx context.Context) ([]*model.Interview, error) {
	return r.list(ctx, `SELECT `+interviewColumns+` FROM interviews ORDER BY start_time, id`)
}

// ListByParticipant は候補者または面接官として参加する面接を開始日時順に返す。
func (r *PostgresInterviewRepo) ListByParticipant(ctx context.Context, externalID string) ([]*model.Interview, error) {
	return r.list(ctx,
		`SELECT `+interviewColumns+` FROM interviews
		 WHERE candidate_id = $1 OR $1 = ANY(interviewer_ids)
		 ORDER BY start_time, id`,
		externalID,
	)
}

func (r *PostgresInterviewRepo) list(ctx context.Context, query string, args ...any) ([]*model.Interview, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	defer rows.Close()

	var list []*model.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interview: %w", err)
		}
		list = append(list, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interviews: %w", err)
	}
	return list, nil
}

// UpdateStatus はステータスと終了日時を更新する。
func (r *PostgresInterviewRepo) UpdateStatus(ctx context.Context, id string, status model.InterviewStatus, endTime *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE interviews SET status = $2, end_time = $3, updated_at = now() WHERE id = $1`,
		id, string(status), endTime,
	)
	if err != nil {
		return fmt.Errorf("failed to update interview status: %w", err)
	}
	return expectAffected(result, "interview", id)
}

// CreateComment はコメントを作成する。
func (r *PostgresInterviewRepo) CreateComment(ctx context.Context, c *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, interview_id, interviewer_id, content, rating, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.InterviewID, c.InterviewerID, c.Content, c.Rating, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// ListComments は面接のコメントを作成日時順に返す。
func (r *PostgresInterviewRepo) ListComments(ctx context.Context, interviewID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, interview_id, interviewer_id, content, rating, created_at
		 FROM comments WHERE interview_id = $1 ORDER BY created_at, id`,
		interviewID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c := &model.Comment{}
		if err := rows.Scan(&c.ID, &c.InterviewID, &c.InterviewerID, &c.Content, &c.Rating, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

func scanInterview(s rowScanner) (*model.Interview, error) {
	iv := &model.Interview{}
	var (
		status  string
		endTime sql.NullTime
		ids     pq.StringArray
	)
	if err := s.Scan(&iv.ID, &iv.Title, &iv.Description, &iv.StartTime, &endTime, &status, &iv.CallID,
		&iv.CandidateID, &ids, &iv.CreatedAt, &iv.UpdatedAt); err != nil {
		return nil, err
	}
	iv.Status = model.InterviewStatus(status)
	iv.InterviewerIDs = []string(ids)
	if endTime.Valid {
		iv.EndTime = &endTime.Time
	}
	return iv, nil
}

// compile-time interface check
var _ InterviewRepository = (*PostgresInterviewRepo)(nil)
