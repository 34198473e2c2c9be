package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/codemeet/internal/model"
)

func TestPostgresSessionRepo_Create_WritesBackCreatedAt(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresSessionRepo(db)
	expires := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	dbNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs("sess-1", "user-1", expires, sql.NullTime{}).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(dbNow))

	s := &model.Session{ID: "sess-1", UserID: "user-1", ExpiresAt: expires}
	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !s.CreatedAt.Equal(dbNow) {
		t.Errorf("CreatedAt = %v, want %v", s.CreatedAt, dbNow)
	}
}

func TestPostgresSessionRepo_FindByID(t *testing.T) {
	expires := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query := regexp.QuoteMeta("FROM sessions WHERE id = $1 AND expires_at > now()")

	t.Run("有効", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(query).WithArgs("sess-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}).
				AddRow("sess-1", "user-1", expires, created))

		s, err := NewPostgresSessionRepo(db).FindByID(context.Background(), "sess-1")
		if err != nil {
			t.Fatalf("FindByID returned error: %v", err)
		}
		if s == nil || s.UserID != "user-1" || !s.ExpiresAt.Equal(expires) {
			t.Errorf("session = %+v", s)
		}
	})

	t.Run("存在しないか期限切れ", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(query).WithArgs("gone").WillReturnError(sql.ErrNoRows)

		s, err := NewPostgresSessionRepo(db).FindByID(context.Background(), "gone")
		if err != nil || s != nil {
			t.Errorf("FindByID = (%v, %v), want (nil, nil)", s, err)
		}
	})

	t.Run("DBエラー", func(t *testing.T) {
		db, mock := newMock(t)
		dbErr := errors.New("connection reset")
		mock.ExpectQuery(query).WithArgs("sess-1").WillReturnError(dbErr)

		if _, err := NewPostgresSessionRepo(db).FindByID(context.Background(), "sess-1"); !errors.Is(err, dbErr) {
			t.Errorf("err = %v, want wrapped %v", err, dbErr)
		}
	})
}

func TestPostgresSessionRepo_DeleteExpired(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE expires_at <= now()")).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewPostgresSessionRepo(db).DeleteExpired(context.Background())
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}
}

func TestPostgresSessionRepo_DeleteByUserID(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := NewPostgresSessionRepo(db).DeleteByUserID(context.Background(), "user-1"); err != nil {
		t.Fatalf("DeleteByUserID returned error: %v", err)
	}
}
