package identity

import (
	"encoding/json"
	"fmt"
)

// EventKind はIdPが配信するWebhookイベントの種別を表す。
type EventKind string

const (
	// EventUserCreated はIdP側でのアカウント作成イベント。
	EventUserCreated EventKind = "user.created"
	// EventUserUpdated はIdP側でのアカウント更新イベント。
	EventUserUpdated EventKind = "user.updated"
	// EventUserDeleted はIdP側でのアカウント削除イベント。
	EventUserDeleted EventKind = "user.deleted"
	// EventUnknown は未知のイベント種別。前方互換のため受理して無視する。
	EventUnknown EventKind = ""
)

// Event は検証済みWebhookペイロードをパースしたイベントを表す。
// 既知の種別はKindに、アカウント情報はAccountに展開される。
// 未知の種別はKind=EventUnknownとし、RawTypeに元の文字列を保持する。
type Event struct {
	Kind    EventKind
	RawType string
	Account ProviderAccount
}

// eventEnvelope はIdPのWebhookペイロードの外形。
type eventEnvelope struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		Username       string `json:"username"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

// ParseEvent は署名検証済みのWebhookペイロードをEventにパースする。
// 動的なペイロード形状を既知種別のタグ付きバリアントへ正規化する。
func ParseEvent(payload []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("Webhookペイロードのパースに失敗しました: %w", err)
	}

	event := Event{RawType: env.Type}

	switch env.Type {
	case string(EventUserCreated):
		event.Kind = EventUserCreated
	case string(EventUserUpdated):
		event.Kind = EventUserUpdated
	case string(EventUserDeleted):
		event.Kind = EventUserDeleted
	default:
		event.Kind = EventUnknown
		return event, nil
	}

	event.Account = ProviderAccount{
		Subject:   env.Data.ID,
		Username:  env.Data.Username,
		FirstName: env.Data.FirstName,
		LastName:  env.Data.LastName,
	}
	if len(env.Data.EmailAddresses) > 0 {
		event.Account.Email = env.Data.EmailAddresses[0].EmailAddress
	}

	return event, nil
}
