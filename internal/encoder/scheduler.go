package encoder

import (
    "container/heap"
    "time"

    "midinotes/internal/clock"
)

const (
    // schedulerPoll は待ち行列が空のときの最大待ち時間。停止要求への応答性を保つ。
    schedulerPoll = 100 * time.Millisecond
    // DefaultGrace は終了時に未発火のノートオフを待つ上限。
    DefaultGrace = 500 * time.Millisecond
)

type pendingOff struct {
    due   time.Time
    pitch uint8
    seq   uint64
}

// offQueue は due の早い順（同時刻なら登録順）に並ぶヒープ。
type offQueue []pendingOff

func (q offQueue) Len() int { return len(q) }
func (q offQueue) Less(i, j int) bool {
    if q[i].due.Equal(q[j].due) {
        return q[i].seq < q[j].seq
    }
    return q[i].due.Before(q[j].due)
}
func (q offQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *offQueue) Push(x any)   { *q = append(*q, x.(pendingOff)) }
func (q *offQueue) Pop() any {
    old := *q
    n := len(old)
    x := old[n-1]
    *q = old[:n-1]
    return x
}

// scheduler は realtime ポリシーのノートオフを期限どおりに発火するワーカー。
// 待ち行列はワーカー goroutine だけが持ち、エンコーダとは in チャネルでのみやり取りする。
// ノートオフ同士は期限順に出るが、メインパスのノートオンとの前後関係は保証しない。
type scheduler struct {
    in    chan pendingOff
    abort chan struct{}
    done  chan struct{}

    clk  clock.Clock
    fire func(pitch uint8)
    seq  uint64

    abandoned int
}

func newScheduler(clk clock.Clock, fire func(pitch uint8)) *scheduler {
    s := &scheduler{
        in:    make(chan pendingOff, 64),
        abort: make(chan struct{}),
        done:  make(chan struct{}),
        clk:   clk,
        fire:  fire,
    }
    go s.run()
    return s
}

// add は due にノートオフを予約する。stop の後に呼んではいけない。
func (s *scheduler) add(due time.Time, pitch uint8) {
    s.seq++
    s.in <- pendingOff{due: due, pitch: pitch, seq: s.seq}
}

func (s *scheduler) run() {
    defer close(s.done)
    var q offQueue
    in := s.in
    for {
        if in == nil && q.Len() == 0 {
            return
        }
        wait := schedulerPoll
        if q.Len() > 0 {
            d := q[0].due.Sub(s.clk.Now())
            if d <= 0 {
                e := heap.Pop(&q).(pendingOff)
                s.fire(e.pitch)
                continue
            }
            if d < wait {
                wait = d
            }
        }
        timer := time.NewTimer(wait)
        select {
        case e, ok := <-in:
            if ok {
                heap.Push(&q, e)
            } else {
                in = nil
            }
        case <-timer.C:
        case <-s.abort:
            timer.Stop()
            s.abandoned = q.Len()
            return
        }
        timer.Stop()
    }
}

// stop は新規受付を止め、grace の間だけ残りの発火を待つ。
// 期限内に出せなかったノートオフの数を返す（それらは破棄される）。
func (s *scheduler) stop(grace time.Duration) int {
    close(s.in)
    t := time.NewTimer(grace)
    defer t.Stop()
    select {
    case <-s.done:
    case <-t.C:
        close(s.abort)
        <-s.done
    }
    return s.abandoned
}
