package queue

import (
	"errors"
	"sync"
)

// ErrClosed はクローズ済みのキューへの送信時に返される
var ErrClosed = errors.New("sending on a closed queue")

// Queue は無制限のMPMC FIFOキュー
type Queue[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	items    []T
	head     int
	closed   bool
}

// New は新しいキューを作成する
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// Push は末尾に要素を追加する（ブロックしない）
func (q *Queue[T]) Push(v T) error {
	return q.PushFunc(v, nil)
}

// PushFunc は Push と同じだが、追加に成功した場合は accepted をロック内で呼ぶ
// accepted はどのコンシューマーが v を取り出すよりも先に完了する
func (q *Queue[T]) PushFunc(v T, accepted func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	if accepted != nil {
		accepted()
	}
	q.nonEmpty.Signal()
	return nil
}

// Pop は先頭の要素を取り出す。空の場合は要素が届くまでブロックする
// クローズ済みかつ空の場合は false を返す
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.len() == 0 {
		if q.closed {
			var zero T
			return zero, false
		}
		q.nonEmpty.Wait()
	}

	v := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++

	// 読み出し済み領域が半分を超えたら詰める
	if q.head > len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return v, true
}

// CloseWith は tail を末尾に追加してからキューをクローズする
// 追加とクローズは同一ロック内で行われる
func (q *Queue[T]) CloseWith(tail ...T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, tail...)
	q.closed = true
	q.nonEmpty.Broadcast()
	return nil
}

// Len は未取得の要素数を返す
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

// Closed はクローズ済みかどうかを返す
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) len() int {
	return len(q.items) - q.head
}
