package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLUserRepo はdatabase/sqlを使用したユーザーリポジトリ。
// SQLiteとPostgreSQLの両方で動作するSQLのみを使用する。
type SQLUserRepo struct {
	db *sql.DB
}

// NewSQLUserRepo はSQLUserRepoを生成する。
func NewSQLUserRepo(db *sql.DB) *SQLUserRepo {
	return &SQLUserRepo{db: db}
}

// Ensure はhandleに対応するユーザーIDを返す。存在しない場合は作成する。
// 挿入と参照を1文のUPSERTで行うため、並行呼び出しでも挿入と参照の間に隙間が生じない。
func (r *SQLUserRepo) Ensure(ctx context.Context, handle string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (handle) VALUES ($1)
		 ON CONFLICT (handle) DO UPDATE SET handle = excluded.handle
		 RETURNING id`,
		handle,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %q: %w", handle, ErrNotResolved)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to ensure user: %w", err)
	}

	return id, nil
}

// compile-time interface check
var _ UserRepository = (*SQLUserRepo)(nil)
