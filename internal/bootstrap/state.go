package bootstrap

import "github.com/hitoshi/campusbuzz/internal/model"

// Phase はチャットID連携1回分の進行状態。
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseLoggingIn            Phase = "logging_in"
	PhaseCreating             Phase = "creating"
	PhaseLoggingInAfterCreate Phase = "logging_in_after_create"
	PhaseAuthenticated        Phase = "authenticated"
	PhaseFailed               Phase = "failed"
)

// Terminal は終端状態かどうかを返す。
func (p Phase) Terminal() bool {
	return p == PhaseAuthenticated || p == PhaseFailed
}

// outcome は1フェーズの実行結果。
type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
)

// transitions はフェーズ遷移表。
// 初回ログインの失敗だけが作成フェーズへのフォールバックになり、それ以外の失敗は終端。
var transitions = map[Phase]map[outcome]Phase{
	PhaseIdle: {
		outcomeSucceeded: PhaseLoggingIn,
		outcomeFailed:    PhaseFailed,
	},
	PhaseLoggingIn: {
		outcomeSucceeded: PhaseAuthenticated,
		outcomeFailed:    PhaseCreating,
	},
	PhaseCreating: {
		outcomeSucceeded: PhaseLoggingInAfterCreate,
		outcomeFailed:    PhaseFailed,
	},
	PhaseLoggingInAfterCreate: {
		outcomeSucceeded: PhaseAuthenticated,
		outcomeFailed:    PhaseFailed,
	},
}

// maxLoginAttempts は1回の連携で行うログイン試行の上限（初回 + 作成後の1回）。
const maxLoginAttempts = 2

// State は1回の連携処理の状態。実行中のgoroutineだけが読み書きする。
type State struct {
	Phase        Phase
	Account      model.PrimaryAccount
	AttemptCount int
	LastError    *BridgeError
	Identity     *model.ChatIdentity
}

func newState(account model.PrimaryAccount) *State {
	return &State{
		Phase:   PhaseIdle,
		Account: account,
	}
}

// advance は遷移表に従って次のフェーズへ進め、遷移元と遷移先を返す。
// 表にない遷移はPhaseFailedとして扱う。
func (s *State) advance(o outcome) (from, to Phase) {
	from = s.Phase
	to, ok := transitions[from][o]
	if !ok {
		to = PhaseFailed
	}
	s.Phase = to
	return from, to
}
