package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/codemeet/internal/model"
)

const userColumns = `id, external_id, email, name, COALESCE(image, ''), role, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByExternalID は外部identity idでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
}

// FindByEmail はメールアドレスでユーザーを取得する。
// 同一メールのレコードが複数ある場合は最も古いものを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 ORDER BY created_at LIMIT 1`,
		email,
	)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// UpsertByExternalID はexternal_idをキーに冪等にUPSERTする。
// ON CONFLICTで名前・メール・アバターのみ更新し、roleとcreated_atは保持する。
// xmax = 0 は今回のINSERTで作成された行であることを示す。
func (r *PostgresUserRepo) UpsertByExternalID(ctx context.Context, user *model.User) (bool, error) {
	var created bool
	var role string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (external_id, email, name, image, role)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 ON CONFLICT (external_id) DO UPDATE
		 SET email = EXCLUDED.email,
		     name = EXCLUDED.name,
		     image = EXCLUDED.image,
		     updated_at = now()
		 RETURNING id, role, created_at, updated_at, (xmax = 0)`,
		user.ExternalID, user.Email, user.Name, user.Image, string(model.RoleCandidate),
	).Scan(&user.ID, &role, &user.CreatedAt, &user.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}
	user.Role = model.Role(role)
	return created, nil
}

// UpdateRole はexternal_idで指定したユーザーのロールを変更する。
func (r *PostgresUserRepo) UpdateRole(ctx context.Context, externalID string, role model.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE external_id = $1`,
		externalID, string(role),
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return expectAffected(result, "user", externalID)
}

// List は作成日時順にユーザー一覧を返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// DeleteByID は指定IDのユーザーを削除する。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return expectAffected(result, "user", id)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	u := &model.User{}
	var role string
	if err := s.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Image, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return u, nil
}

func expectAffected(result sql.Result, kind, key string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
