package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// Service はIdPアカウントとローカルユーザーの同期に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// ResolveCaller は外部subjectからローカルユーザーを解決する。
// 見つからない場合はnilを返し、自動作成は行わない。
// 呼び出し側はnilを「未同期アカウント」として扱い、同期を促す。
func (s *Service) ResolveCaller(ctx context.Context, externalSubject string) (*model.User, error) {
	user, err := s.userRepo.FindByExternalSubject(ctx, externalSubject)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve caller: %w", err)
	}
	return user, nil
}

// Provision はIdPアカウントをローカルユーザーへ冪等にUPSERTする。
// 戻り値のboolは新規作成された場合にtrueとなる。
//
// 突き合わせの優先順位:
//  1. external_subject一致 → 可変フィールドを更新
//  2. email一致 → subjectを付け替えて更新（IdPアカウント再作成時に既存タスクを引き継ぐ）
//  3. いずれも不一致 → 新規作成
func (s *Service) Provision(ctx context.Context, account ProviderAccount) (*model.User, bool, error) {
	if account.Email == "" {
		return nil, false, model.NewValidationError("email", "メールアドレスが必要です")
	}

	username := deriveUsername(account)
	now := time.Now().UTC()

	// 1. subjectで既存ユーザーを検索
	existing, err := s.userRepo.FindByExternalSubject(ctx, account.Subject)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user by subject: %w", err)
	}

	// 2. subject不一致の場合はemailで検索（アカウント再作成への追従）
	if existing == nil {
		existing, err = s.userRepo.FindByEmail(ctx, account.Email)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find user by email: %w", err)
		}
		if existing != nil {
			slog.Info("re-binding external subject to existing user",
				slog.String("user_id", existing.ID),
				slog.String("email", account.Email),
			)
		}
	}

	if existing != nil {
		existing.ExternalSubject = account.Subject
		existing.Email = account.Email
		existing.Username = username
		existing.UpdatedAt = now

		if err := s.userRepo.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("failed to update user: %w", err)
		}
		return existing, false, nil
	}

	// 3. 新規作成
	user := &model.User{
		ID:              uuid.New().String(),
		ExternalSubject: account.Subject,
		Email:           account.Email,
		Username:        username,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user provisioned",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, true, nil
}

// Reconcile はIdPのWebhookイベントをローカルユーザーへ反映する。
// 未知のイベント種別は前方互換のため無視する。
func (s *Service) Reconcile(ctx context.Context, event Event) error {
	switch event.Kind {
	case EventUserCreated:
		// Provisionと同一のUPSERTだが、email欠落は黙って補完せずエラーにする
		if _, _, err := s.Provision(ctx, event.Account); err != nil {
			return err
		}
		return nil

	case EventUserUpdated:
		return s.reconcileUpdated(ctx, event.Account)

	case EventUserDeleted:
		return s.reconcileDeleted(ctx, event.Account.Subject)

	default:
		slog.Info("ignoring unknown webhook event type",
			slog.String("type", event.RawType),
		)
		return nil
	}
}

// reconcileUpdated はsubject一致のユーザーを更新する。
// 対象が存在しない場合はエラーとし、自動作成は行わない。
func (s *Service) reconcileUpdated(ctx context.Context, account ProviderAccount) error {
	if account.Email == "" {
		return model.NewValidationError("email", "メールアドレスが必要です")
	}

	user, err := s.userRepo.FindByExternalSubject(ctx, account.Subject)
	if err != nil {
		return fmt.Errorf("failed to find user by subject: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	user.Email = account.Email
	user.Username = deriveUsername(account)
	user.UpdatedAt = time.Now().UTC()

	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	slog.Info("user reconciled from webhook",
		slog.String("user_id", user.ID),
	)
	return nil
}

// reconcileDeleted はユーザーと所有タスク、監査ログを一括削除する。
func (s *Service) reconcileDeleted(ctx context.Context, subject string) error {
	user, err := s.userRepo.FindByExternalSubject(ctx, subject)
	if err != nil {
		return fmt.Errorf("failed to find user by subject: %w", err)
	}
	if user == nil {
		// 既に存在しない場合は冪等に成功扱いとする
		slog.Info("user already absent on delete event",
			slog.String("subject", subject),
		)
		return nil
	}

	if err := s.userRepo.DeleteCascade(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to cascade delete user: %w", err)
	}

	slog.Info("user deleted from webhook",
		slog.String("user_id", user.ID),
	)
	return nil
}

// deriveUsername は表示名を導出する。
// 優先順位: IdPのusername → "first last" → first → emailのローカルパート
func deriveUsername(account ProviderAccount) string {
	switch {
	case account.Username != "":
		return account.Username
	case account.FirstName != "" && account.LastName != "":
		return account.FirstName + " " + account.LastName
	case account.FirstName != "":
		return account.FirstName
	default:
		if i := strings.Index(account.Email, "@"); i > 0 {
			return account.Email[:i]
		}
		return account.Email
	}
}
