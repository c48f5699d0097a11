package student

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/nao1215/campus/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrNotFound は指定した学生が存在しないことを表す。
	ErrNotFound = errors.New("student not found")
	// ErrDuplicateEmail はメールアドレスが既に登録されていることを表す。
	ErrDuplicateEmail = errors.New("email already registered")
)

// Student は学生の情報。
type Student struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	// Major は専攻。
	Major string `json:"major"`
	// Year は学年。
	Year int `json:"year"`
}

// CreateInput は学生登録時の入力。
type CreateInput struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Major string `json:"major" binding:"required"`
	Year  int    `json:"year" binding:"required,min=1,max=6"`
}

// UpdateInput は学生更新時の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email" binding:"omitempty,email"`
	Major *string `json:"major"`
	Year  *int    `json:"year" binding:"omitempty,min=1,max=6"`
}

// Store はSQLiteに保存された学生を操作する。
type Store struct {
	db *sql.DB
}

// OpenStore はインメモリSQLiteを開き、マイグレーションを適用したStoreを返す。
func OpenStore(ctx context.Context, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, db, migrations, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

const selectColumns = "SELECT id, name, email, major, year FROM students"

type scanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanStudent(row scanner) (Student, error) {
	var st Student
	err := row.Scan(&st.ID, &st.Name, &st.Email, &st.Major, &st.Year)
	return st, err
}

// List は全ての学生をID順に返す。
func (s *Store) List(ctx context.Context) ([]Student, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("学生一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	students := make([]Student, 0)
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("学生の読み取りに失敗: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// Get は指定IDの学生を返す。
func (s *Store) Get(ctx context.Context, id int64) (Student, error) {
	return get(ctx, s.db, id)
}

func get(ctx context.Context, q queryer, id int64) (Student, error) {
	st, err := scanStudent(q.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	if err != nil {
		return Student{}, fmt.Errorf("学生の取得に失敗: %w", err)
	}
	return st, nil
}

// Create は学生を登録する。
func (s *Store) Create(ctx context.Context, in CreateInput) (Student, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO students (name, email, major, year) VALUES (?, ?, ?, ?)",
		in.Name, in.Email, in.Major, in.Year,
	)
	if err != nil {
		return Student{}, translate(err, "学生の登録に失敗")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Student{}, fmt.Errorf("採番されたIDの取得に失敗: %w", err)
	}
	return s.Get(ctx, id)
}

// Update は指定されたフィールドのみを更新する。
func (s *Store) Update(ctx context.Context, id int64, in UpdateInput) (Student, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Student{}, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	st, err := get(ctx, tx, id)
	if err != nil {
		return Student{}, err
	}
	if in.Name != nil {
		st.Name = *in.Name
	}
	if in.Email != nil {
		st.Email = *in.Email
	}
	if in.Major != nil {
		st.Major = *in.Major
	}
	if in.Year != nil {
		st.Year = *in.Year
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE students SET name = ?, email = ?, major = ?, year = ? WHERE id = ?",
		st.Name, st.Email, st.Major, st.Year, id,
	); err != nil {
		return Student{}, translate(err, "学生の更新に失敗")
	}
	if err := tx.Commit(); err != nil {
		return Student{}, fmt.Errorf("コミットに失敗: %w", err)
	}
	return st, nil
}

// Delete は指定IDの学生を削除する。
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM students WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("学生の削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// translate は一意制約違反をErrDuplicateEmailに変換する。
func translate(err error, msg string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateEmail
	}
	return fmt.Errorf("%s: %w", msg, err)
}
