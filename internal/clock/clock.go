package clock

import (
    "context"
    "runtime"
    "sync"
    "time"
)

// Clock はデコーダ/エンコーダが使う時刻源。テストでは Fake を差し込む。
type Clock interface {
    Now() time.Time
    // SleepUntil は t まで待つ。ctx がキャンセルされたら ctx.Err() を返す。
    SleepUntil(ctx context.Context, t time.Time) error
}

// Real は実時間の Clock。最後の SpinWin だけ Gosched を挟んでスピンし、精度を上げる。
type Real struct {
    SpinWin time.Duration
}

func (Real) Now() time.Time { return time.Now() }

func (r Real) SleepUntil(ctx context.Context, t time.Time) error {
    return WaitUntil(ctx, t, r.SpinWin)
}

// WaitUntil は指定時刻まで待機する。大部分は Timer で眠り、最後のわずかな時間は
// Gosched を挟みつつスピンする。
func WaitUntil(ctx context.Context, t time.Time, spinWin time.Duration) error {
    d := time.Until(t)
    if d <= 0 {
        return ctx.Err()
    }
    if spinWin < 0 {
        spinWin = 0
    }
    if d > spinWin {
        timer := time.NewTimer(d - spinWin)
        select {
        case <-ctx.Done():
            timer.Stop()
            return ctx.Err()
        case <-timer.C:
        }
    }
    for time.Until(t) > 0 {
        if err := ctx.Err(); err != nil {
            return err
        }
        runtime.Gosched()
    }
    return nil
}

// Fake は手動で進める Clock。SleepUntil は待たずに現在時刻を t まで進める。
type Fake struct {
    mu  sync.Mutex
    now time.Time
}

func NewFake(start time.Time) *Fake {
    return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.now
}

// Advance は時刻を d だけ進める。
func (f *Fake) Advance(d time.Duration) {
    f.mu.Lock()
    f.now = f.now.Add(d)
    f.mu.Unlock()
}

func (f *Fake) SleepUntil(ctx context.Context, t time.Time) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    f.mu.Lock()
    if t.After(f.now) {
        f.now = t
    }
    f.mu.Unlock()
    return nil
}
