package pool

import (
	"time"

	"github.com/google/uuid"
)

// Job はワーカーが一度だけ実行する処理
type Job func()

// task は受け付け済みのジョブ
type task struct {
	id        uuid.UUID
	fn        Job
	submitted time.Time
}

type messageKind uint8

const (
	msgNewJob messageKind = iota
	msgTerminate
)

// message はキューを流れる制御メッセージ
type message struct {
	kind messageKind
	task *task
}

func newJobMessage(fn Job) message {
	return message{
		kind: msgNewJob,
		task: &task{
			id:        uuid.New(),
			fn:        fn,
			submitted: time.Now(),
		},
	}
}

var terminateMessage = message{kind: msgTerminate}

// Outcome は1ジョブの実行結果
type Outcome struct {
	JobID    uuid.UUID
	WorkerID int
	Waited   time.Duration // キュー滞留時間
	Duration time.Duration // 実行時間
	Err      error         // パニック時は *PanicError
}

// Failed はジョブが異常終了したかどうかを返す
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Recorder はジョブの投入と結果を受け取る
type Recorder interface {
	JobSubmitted()
	JobFinished(o Outcome)
	WorkerRestarted(workerID int)
}

type noopRecorder struct{}

func (noopRecorder) JobSubmitted()       {}
func (noopRecorder) JobFinished(Outcome) {}
func (noopRecorder) WorkerRestarted(int) {}
