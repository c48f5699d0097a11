package course

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nao1215/campus/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound は指定したコースが存在しないことを表す。
var ErrNotFound = errors.New("course not found")

// Course はコースの情報。
type Course struct {
	// ID はコースの一意識別子。
	ID int64 `json:"id"`
	// Name はコース名。
	Name string `json:"name"`
	// Code はコースコード（CS101など）。
	Code string `json:"code"`
	// Credits は単位数。
	Credits int `json:"credits"`
	// Instructor は担当教員。
	Instructor string `json:"instructor"`
	// Description はコースの説明。
	Description *string `json:"description"`
}

// CreateInput はコース作成時の入力。
type CreateInput struct {
	Name        string  `json:"name" binding:"required"`
	Code        string  `json:"code" binding:"required"`
	Credits     *int    `json:"credits" binding:"required"`
	Instructor  string  `json:"instructor" binding:"required"`
	Description *string `json:"description"`
}

// UpdateInput はコース更新時の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name        *string `json:"name"`
	Code        *string `json:"code"`
	Credits     *int    `json:"credits"`
	Instructor  *string `json:"instructor"`
	Description *string `json:"description"`
	// ClearDescription は"description": nullが明示された場合にtrueになる。
	ClearDescription bool `json:"-"`
}

// UnmarshalJSON は未指定のdescriptionと明示的なnullを区別してデコードする。
func (in *UpdateInput) UnmarshalJSON(data []byte) error {
	type plain UpdateInput
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if raw, ok := fields["description"]; ok && string(bytes.TrimSpace(raw)) == "null" {
		p.ClearDescription = true
	}
	*in = UpdateInput(p)
	return nil
}

// Store はSQLiteに保存されたコースを操作する。
type Store struct {
	db *sql.DB
}

// OpenStore はインメモリSQLiteを開き、マイグレーションを適用したStoreを返す。
func OpenStore(ctx context.Context, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// インメモリDBは接続ごとに別物になるため1接続に固定する
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

const selectColumns = "SELECT id, name, code, credits, instructor, description FROM courses"

type scanner interface {
	Scan(dest ...any) error
}

// queryer は*sql.DBと*sql.Txの共通部分。
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanCourse(row scanner) (Course, error) {
	var (
		c           Course
		description sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Credits, &c.Instructor, &description); err != nil {
		return Course{}, err
	}
	if description.Valid {
		c.Description = &description.String
	}
	return c, nil
}

// List は全てのコースをID順に返す。
func (s *Store) List(ctx context.Context) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("コース一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	courses := make([]Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("コースの読み取りに失敗: %w", err)
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// Get は指定IDのコースを返す。存在しない場合はErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, id int64) (Course, error) {
	return get(ctx, s.db, id)
}

func get(ctx context.Context, q queryer, id int64) (Course, error) {
	c, err := scanCourse(q.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrNotFound
	}
	if err != nil {
		return Course{}, fmt.Errorf("コースの取得に失敗: %w", err)
	}
	return c, nil
}

// Create はコースを作成し、採番されたIDを含めて返す。
func (s *Store) Create(ctx context.Context, in CreateInput) (Course, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO courses (name, code, credits, instructor, description) VALUES (?, ?, ?, ?, ?)",
		in.Name, in.Code, *in.Credits, in.Instructor, in.Description,
	)
	if err != nil {
		return Course{}, fmt.Errorf("コースの作成に失敗: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Course{}, fmt.Errorf("採番されたIDの取得に失敗: %w", err)
	}
	return s.Get(ctx, id)
}

// Update は指定されたフィールドのみを更新し、更新後のコースを返す。
func (s *Store) Update(ctx context.Context, id int64, in UpdateInput) (Course, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Course{}, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	c, err := get(ctx, tx, id)
	if err != nil {
		return Course{}, err
	}
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Code != nil {
		c.Code = *in.Code
	}
	if in.Credits != nil {
		c.Credits = *in.Credits
	}
	if in.Instructor != nil {
		c.Instructor = *in.Instructor
	}
	switch {
	case in.ClearDescription:
		c.Description = nil
	case in.Description != nil:
		c.Description = in.Description
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE courses SET name = ?, code = ?, credits = ?, instructor = ?, description = ? WHERE id = ?",
		c.Name, c.Code, c.Credits, c.Instructor, c.Description, id,
	); err != nil {
		return Course{}, fmt.Errorf("コースの更新に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Course{}, fmt.Errorf("コミットに失敗: %w", err)
	}
	return c, nil
}

// Delete は指定IDのコースを削除する。存在しない場合はErrNotFoundを返す。
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM courses WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("コースの削除に失敗: %w", err)
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
