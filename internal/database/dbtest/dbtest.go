// Package dbtest はテスト用のSQLiteデータベースを提供する。
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/hitoshi/wikifeed/internal/database"
)

// Open はt.TempDir()配下にマイグレーション適用済みのSQLiteデータベースを作成する。
// テスト終了時に自動的に閉じられる。
func Open(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("テスト用データベースのオープンに失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db, database.DriverSQLite); err != nil {
		t.Fatalf("テスト用データベースのマイグレーションに失敗: %v", err)
	}

	return db
}
