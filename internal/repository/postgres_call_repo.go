package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
)

// PostgresCallRepo はPostgreSQLを使用した通話セッションリポジトリ。
type PostgresCallRepo struct {
	db *sql.DB
}

// NewPostgresCallRepo はPostgresCallRepoを生成する。
func NewPostgresCallRepo(db *sql.DB) *PostgresCallRepo {
	return &PostgresCallRepo{db: db}
}

// CreateIfNotExists は通話が存在しなければ作成する。
// (type, id) が既に存在する場合は既存のメタデータを変更しない。
func (r *PostgresCallRepo) CreateIfNotExists(ctx context.Context, call *model.Call) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO calls (type, id, created_by, description, starts_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (type, id) DO NOTHING`,
		call.Type, call.ID, call.CreatedBy, call.Description, call.StartsAt, call.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create call: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// FindByID は通話を取得する。見つからない場合はnilを返す。
func (r *PostgresCallRepo) FindByID(ctx context.Context, callType, id string) (*model.Call, error) {
	call, err := scanCall(r.db.QueryRowContext(ctx,
		`SELECT type, id, created_by, description, starts_at, created_at, ended_at
		 FROM calls WHERE type = $1 AND id = $2`,
		callType, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find call: %w", err)
	}
	return call, nil
}

// MarkEnded は未終了の通話を終了済みにする。
func (r *PostgresCallRepo) MarkEnded(ctx context.Context, callType, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE calls SET ended_at = $3 WHERE type = $1 AND id = $2 AND ended_at IS NULL`,
		callType, id, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to end call: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// UpsertMember は参加者を登録する。
// 同じユーザーの再参加はjoined_atを更新しleft_atをクリアする。
func (r *PostgresCallRepo) UpsertMember(ctx context.Context, m *model.CallMember) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_members (call_type, call_id, user_id, name, image, joined_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		 ON CONFLICT (call_type, call_id, user_id) DO UPDATE
		 SET name = EXCLUDED.name,
		     image = EXCLUDED.image,
		     joined_at = EXCLUDED.joined_at,
		     left_at = NULL`,
		m.CallType, m.CallID, m.UserID, m.Name, m.Image, m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert call member: %w", err)
	}
	return nil
}

// MarkMemberLeft は参加者を退出済みにする。
func (r *PostgresCallRepo) MarkMemberLeft(ctx context.Context, callType, callID, userID string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE call_members SET left_at = $4
		 WHERE call_type = $1 AND call_id = $2 AND user_id = $3 AND left_at IS NULL`,
		callType, callID, userID, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark member left: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkAllMembersLeft は通話の全ライブ参加者を退出済みにする。
func (r *PostgresCallRepo) MarkAllMembersLeft(ctx context.Context, callType, callID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE call_members SET left_at = $3
		 WHERE call_type = $1 AND call_id = $2 AND left_at IS NULL`,
		callType, callID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark all members left: %w", err)
	}
	return nil
}

// ListLiveMembers は退出していない参加者を参加順に返す。
func (r *PostgresCallRepo) ListLiveMembers(ctx context.Context, callType, callID string) ([]*model.CallMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT call_type, call_id, user_id, name, COALESCE(image, ''), joined_at, left_at
		 FROM call_members
		 WHERE call_type = $1 AND call_id = $2 AND left_at IS NULL
		 ORDER BY joined_at, user_id`,
		callType, callID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list call members: %w", err)
	}
	defer rows.Close()

	var members []*model.CallMember
	for rows.Next() {
		m := &model.CallMember{}
		var leftAt sql.NullTime
		if err := rows.Scan(&m.CallType, &m.CallID, &m.UserID, &m.Name, &m.Image, &m.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("failed to scan call member: %w", err)
		}
		if leftAt.Valid {
			m.LeftAt = &leftAt.Time
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call members: %w", err)
	}
	return members, nil
}

// ListIdle はライブ参加者がおらず、最後の活動がidleSinceより前の未終了通話を返す。
// 最後の活動は作成日時・開始予定日時・最終退出日時のうち最も新しいもの。
func (r *PostgresCallRepo) ListIdle(ctx context.Context, idleSince time.Time, limit int) ([]*model.Call, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.type, c.id, c.created_by, c.description, c.starts_at, c.created_at, c.ended_at
		 FROM calls c
		 WHERE c.ended_at IS NULL
		   AND NOT EXISTS (
		     SELECT 1 FROM call_members m
		     WHERE m.call_type = c.type AND m.call_id = c.id AND m.left_at IS NULL
		   )
		   AND GREATEST(
		     c.created_at,
		     c.starts_at,
		     COALESCE((SELECT max(m.left_at) FROM call_members m
		               WHERE m.call_type = c.type AND m.call_id = c.id), c.created_at)
		   ) < $1
		 ORDER BY c.created_at
		 LIMIT $2`,
		idleSince, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list idle calls: %w", err)
	}
	defer rows.Close()

	var calls []*model.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate idle calls: %w", err)
	}
	return calls, nil
}

func scanCall(s rowScanner) (*model.Call, error) {
	c := &model.Call{}
	var endedAt sql.NullTime
	if err := s.Scan(&c.Type, &c.ID, &c.CreatedBy, &c.Description, &c.StartsAt, &c.CreatedAt, &endedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		c.EndedAt = &endedAt.Time
	}
	return c, nil
}

// compile-time interface check
var _ CallRepository = (*PostgresCallRepo)(nil)
