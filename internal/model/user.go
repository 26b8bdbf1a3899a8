// Package model はドメインモデルを定義する。
package model

import "time"

// User は外部IdPのアカウントをミラーしたローカルユーザーを表す。
// ExternalSubjectはIdPが発行する安定したアカウント識別子で、
// ローカルユーザーと1対1で対応する。
type User struct {
	ID              string
	ExternalSubject string
	Email           string
	Username        string // 表示名。IdP情報から導出される
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
