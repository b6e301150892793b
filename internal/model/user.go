// Package model はドメインモデルを定義する。
package model

// User はフィードを受け取るユーザーを表す。
// handleはクライアントが指定する識別子で、初回リクエスト時に遅延作成される。
// 作成後は変更も削除もされない。
type User struct {
	ID     int64
	Handle string
}
