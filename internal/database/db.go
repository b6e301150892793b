package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Driver はdatabase/sqlのドライバ名を表す。
type Driver string

const (
	// DriverSQLite はファイルパス指定時に使用するSQLiteドライバ。
	DriverSQLite Driver = "sqlite3"
	// DriverPostgres はpostgres:// URL指定時に使用するPostgreSQLドライバ。
	DriverPostgres Driver = "postgres"
)

// DriverFor は接続先文字列から使用するドライバを判定する。
// postgres:// または postgresql:// で始まる場合はPostgreSQL、それ以外はSQLiteのファイルパスとみなす。
func DriverFor(dsn string) Driver {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open はデータベース接続を開く。
// SQLiteの場合は親ディレクトリを作成し、外部キー制約・ビジータイムアウト・WALを有効化する。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
func Open(dsn string) (*sql.DB, error) {
	driver := DriverFor(dsn)

	source := dsn
	if driver == DriverSQLite {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		source = sqliteSource(dsn)
	}

	db, err := sql.Open(string(driver), source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLiteの書き込みは直列化されるため、接続を1本に絞ってSQLITE_BUSYを避ける
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}

// sqliteSource はSQLiteのファイルパスに接続パラメータを付与する。
func sqliteSource(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
}
