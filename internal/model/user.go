// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// ユーザー管理そのものは外部のUI/管理層が担い、本サービスは
// セッションの外部キー参照先としてのみ扱う。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
