package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrSizeLteZero is returned when a pool is requested with no workers
	ErrSizeLteZero = errors.New("pool size must be greater than zero")
	// ErrNilJob is wrapped in a FailureError when Submit receives a nil job
	ErrNilJob = errors.New("job is nil")
)

// FailureError はジョブをキューに渡せなかったことを表す
type FailureError struct {
	Description string
	Err         error
}

func newFailure(err error) *FailureError {
	return &FailureError{Description: err.Error(), Err: err}
}

func (e *FailureError) Error() string {
	return "failure: " + e.Description
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

// PanicError はジョブ実行中に発生したパニックを保持する
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// Unwrap はパニック値が error の場合にそれを返す
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
