package bootstrap

import "time"

// Observer は連携処理の進行を受け取るフック。
// メトリクス収集（metrics.Collector）が実装する。
type Observer interface {
	// TransportInitialized はSDK初期化の実行結果を通知する。errがnilなら成功。
	TransportInitialized(err error)
	// PhaseChanged はフェーズ遷移を通知する。
	PhaseChanged(from, to Phase)
	// StepCompleted は1フェーズの処理時間と結果を通知する。
	StepCompleted(phase Phase, elapsed time.Duration, err error)
	// Finished は連携処理の最終結果を通知する。errがnilなら認証成功。
	Finished(err error, attempts int)
	// Coalesced は実行中の処理に相乗りした呼び出しを通知する。
	Coalesced()
}

// NopObserver は何もしないObserver。
type NopObserver struct{}

func (NopObserver) TransportInitialized(error) {}
func (NopObserver) PhaseChanged(_, _ Phase) {}
func (NopObserver) StepCompleted(Phase, time.Duration, error) {}
func (NopObserver) Finished(error, int) {}
func (NopObserver) Coalesced() {}

var _ Observer = NopObserver{}
