package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// defaultInitTimeout はSDK初期化のデフォルトタイムアウト。
const defaultInitTimeout = 15 * time.Second

// Transport はチャットSDKの初期化インターフェース。chat.Clientが実装する。
type Transport interface {
	Initialize(ctx context.Context, cfg model.TransportConfig) error
}

// TransportGate はチャットトランスポートの初期化をプロセス内で1回に限定する。
// 初期化前に並行して呼ばれた場合、実行中の1回の初期化を共有し同じ結果を返す。
// 初期化に失敗した場合は状態を変えず、次回の呼び出しで再度初期化を試みる。
type TransportGate struct {
	transport Transport
	timeout   time.Duration
	observer  Observer

	group singleflight.Group

	mu     sync.Mutex
	ready  bool
	config model.TransportConfig
}

// NewTransportGate はTransportGateを生成する。
// timeoutが0以下の場合はデフォルト値（15秒）を使用する。
func NewTransportGate(transport Transport, timeout time.Duration, observer Observer) *TransportGate {
	if timeout <= 0 {
		timeout = defaultInitTimeout
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &TransportGate{
		transport: transport,
		timeout:   timeout,
		observer:  observer,
	}
}

// EnsureInitialized はトランスポートを初期化済みの状態にする。
// 必須設定はSDK呼び出し前に検証し、欠落時はInitInvalidConfigを返す。
// 同じ設定で初期化済みの場合はSDKを呼ばずにnilを返す。
// 別の設定で初期化済みの場合はInitInvalidConfigを返す（再初期化はしない）。
func (g *TransportGate) EnsureInitialized(ctx context.Context, cfg model.TransportConfig) error {
	if missing := cfg.MissingFields(); len(missing) > 0 {
		return &InitError{
			Kind:   InitInvalidConfig,
			Detail: "missing " + strings.Join(missing, ", "),
		}
	}

	if ready, err := g.check(cfg); ready {
		return err
	}

	ch := g.group.DoChan("init", func() (any, error) {
		return nil, g.initialize(ctx, cfg)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		// 共有した初期化が別の設定で行われた可能性がある
		_, err := g.check(cfg)
		return err
	case <-ctx.Done():
		return &InitError{Kind: InitTransportFailure, Detail: detailOf(ctx.Err())}
	}
}

// Ready は初期化済みかどうかを返す。
func (g *TransportGate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// check は初期化済みかどうかと、初期化済みの設定がcfgと異なる場合のエラーを返す。
func (g *TransportGate) check(cfg model.TransportConfig) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.ready {
		return false, nil
	}
	if g.config != cfg {
		return true, &InitError{
			Kind:   InitInvalidConfig,
			Detail: "transport already initialized with a different configuration",
		}
	}
	return true, nil
}

// initialize はSDKの初期化を1回実行する。singleflight内からのみ呼ばれる。
// 呼び出し元のキャンセルは他の待機者に波及させず、初期化自体はtimeoutで打ち切る。
func (g *TransportGate) initialize(ctx context.Context, cfg model.TransportConfig) error {
	if ready, err := g.check(cfg); ready {
		return err
	}

	initCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	err := g.transport.Initialize(initCtx, cfg)
	g.observer.TransportInitialized(err)
	if err != nil {
		return &InitError{
			Kind:   InitTransportFailure,
			Detail: fmt.Sprintf("region=%s app=%s: %s", cfg.EndpointRegion, cfg.ApplicationID, detailOf(err)),
		}
	}

	g.mu.Lock()
	g.ready = true
	g.config = cfg
	g.mu.Unlock()

	return nil
}
