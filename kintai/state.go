package kintai

type State string

const (
	StateNotWorking = State("not_working")
	StateWorking    = State("working")
	StateOnBreak    = State("on_break")
)

// Active reports whether the state has an open interval.
func (s State) Active() bool {
	return s == StateWorking || s == StateOnBreak
}
