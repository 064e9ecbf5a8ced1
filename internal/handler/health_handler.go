package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/campusbuzz/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// TransportStatus はチャットトランスポートの初期化状態。bootstrap.TransportGateが実装する。
type TransportStatus interface {
	Ready() bool
}

type healthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	ChatTransport string `json:"chat_transport"`
}

// NewHealthHandler はヘルスチェックハンドラーを返す。
// DBに到達できない場合のみ503を返す。チャットトランスポートの状態は参考情報として返す。
// GET /health
func NewHealthHandler(db HealthChecker, transport TransportStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Database: "ok", ChatTransport: "not_initialized"}
		if transport != nil && transport.Ready() {
			resp.ChatTransport = "ready"
		}

		status := http.StatusOK
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				resp.Status = "unavailable"
				resp.Database = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}
		middleware.WriteJSON(w, status, resp)
	}
}
