package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// PresenceToucher はユーザーの最終アクティブ日時を更新する。identity.Serviceが実装する。
type PresenceToucher interface {
	Touch(ctx context.Context, userID string) error
}

// presenceMinInterval は同一ユーザーの更新間隔の下限。
const presenceMinInterval = time.Minute

// NewPresenceMiddleware は認証済みリクエストごとにオンライン状態を更新するミドルウェアを返す。
// SessionMiddlewareの後に配置する。更新の失敗はログのみでリクエストは継続する。
func NewPresenceMiddleware(toucher PresenceToucher, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		mu      sync.Mutex
		touched = make(map[string]time.Time)
	)
	due := func(userID string, now time.Time) bool {
		mu.Lock()
		defer mu.Unlock()
		if last, ok := touched[userID]; ok && now.Sub(last) < presenceMinInterval {
			return false
		}
		touched[userID] = now
		// 古いエントリを掃除してマップの肥大化を防ぐ
		if len(touched) > 10000 {
			for id, at := range touched {
				if now.Sub(at) >= presenceMinInterval {
					delete(touched, id)
				}
			}
		}
		return true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := UserIDFromContext(r.Context()); err == nil && due(userID, time.Now()) {
				if err := toucher.Touch(r.Context(), userID); err != nil {
					logger.Warn("failed to update presence",
						slog.String("user_id", userID),
						slog.String("error", err.Error()),
					)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
