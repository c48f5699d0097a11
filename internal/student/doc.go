// Package student は学生管理のバックエンドサービスを提供する。
// /api/students 以下で学生の一覧、取得、作成、部分更新、削除を行う。
package student
