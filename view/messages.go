package view

import (
	"errors"

	"kintai/kintai"
	"kintai/recorder"
)

// rejectionMessage explains why a request was refused.
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, kintai.ErrOutOfOrder):
		return "直前の記録より前の時刻は登録できません"
	case errors.Is(err, kintai.ErrInvalidTransition):
		return "現在の状態ではこの操作はできません"
	case errors.Is(err, kintai.ErrInvalidSubject), errors.Is(err, kintai.ErrInvalidSession):
		return "対象者が不正です"
	case errors.Is(err, kintai.ErrInvalidTimestamp):
		return "時刻が不正です"
	case errors.Is(err, kintai.ErrUnknownEventKind):
		return "種別が不正です"
	case errors.Is(err, recorder.ErrNotFound):
		return "対象の記録がありません"
	default:
		return err.Error()
	}
}
