package encoder

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "io"
    "strings"
    "sync/atomic"
    "time"

    pkgerrors "github.com/pkg/errors"
    "github.com/samber/lo"
    "github.com/sirupsen/logrus"
    gomidi "gitlab.com/gomidi/midi/v2"

    "midinotes/internal/clock"
    "midinotes/internal/notation"
)

// ErrNoOutput は入力全体から1つもメッセージが出なかったことを表す。
var ErrNoOutput = errors.New("no valid notes found in input")

// Option は Encoder の任意設定。
type Option func(*Encoder)

// WithClock は時刻源を差し替える（テスト用）。
func WithClock(c clock.Clock) Option {
    return func(e *Encoder) { e.clk = c }
}

func WithLogger(l logrus.FieldLogger) Option {
    return func(e *Encoder) { e.log = l }
}

// WithErrorHandler はトークン単位のエラー（FormatError / RangeError）の通知先を設定する。
func WithErrorHandler(fn func(token string, err error)) Option {
    return func(e *Encoder) { e.onError = fn }
}

// WithGrace は realtime 終了時の待ち時間を変える。
func WithGrace(d time.Duration) Option {
    return func(e *Encoder) { e.grace = d }
}

// Encoder はトークンを順に処理し、ポリシーに従ってメッセージを Sink に書く。
// EncodeLine / Close は単一の goroutine から呼ぶこと。
type Encoder struct {
    cfg     Config
    sink    Sink
    clk     clock.Clock
    log     logrus.FieldLogger
    onError func(token string, err error)
    grace   time.Duration
    tick    time.Duration
    ch      uint8

    sched   *scheduler
    played  []uint8
    emitted atomic.Int64
    closed  bool
}

// New は cfg を検証してエンコーダを作る。realtime ならスケジューラを起動する。
func New(cfg Config, sink Sink, opts ...Option) (*Encoder, error) {
    if err := cfg.Validate(); err != nil {
        return nil, err
    }
    if sink == nil {
        return nil, &notation.ConfigError{Field: "sink", Value: nil, Reason: "output is required"}
    }
    cfg.Policy, _ = ParsePolicy(string(cfg.Policy))
    e := &Encoder{
        cfg:   cfg,
        sink:  sink,
        clk:   clock.Real{},
        log:   logrus.StandardLogger(),
        grace: DefaultGrace,
        tick:  cfg.Tick(),
        ch:    uint8(cfg.Channel - 1),
    }
    for _, o := range opts {
        o(e)
    }
    if e.onError == nil {
        e.onError = func(token string, err error) {
            e.log.WithFields(logrus.Fields{"token": token, "err": err}).Warn("不正なトークンをスキップします")
        }
    }
    if cfg.Policy == PolicyRealtime {
        e.sched = newScheduler(e.clk, e.fireOff)
    }
    return e, nil
}

// Emitted はこれまでに書いたメッセージ数。
func (e *Encoder) Emitted() int64 { return e.emitted.Load() }

func (e *Encoder) emit(msg gomidi.Message) error {
    e.log.WithFields(logrus.Fields{
        "status":   fmt.Sprintf("%02X", msg[0]),
        "pitch":    msg[1],
        "velocity": msg[2],
        "channel":  e.cfg.Channel,
    }).Debug("送信")
    if err := e.sink.WriteMessage(msg); err != nil {
        return err
    }
    e.emitted.Add(1)
    return nil
}

func (e *Encoder) noteOn(p uint8) error {
    return e.emit(gomidi.NoteOn(e.ch, p, uint8(e.cfg.Velocity)))
}

func (e *Encoder) noteOff(p uint8) error {
    return e.emit(gomidi.NoteOff(e.ch, p))
}

// fireOff はスケジューラ側から呼ばれる。ここでのエラーは返す先がないのでログのみ。
func (e *Encoder) fireOff(p uint8) {
    if err := e.noteOff(p); err != nil {
        e.log.WithError(err).WithField("pitch", p).Warn("ノートオフの送信に失敗しました")
    }
}

func (e *Encoder) sleep(ctx context.Context, ticks int) error {
    return e.clk.SleepUntil(ctx, e.clk.Now().Add(time.Duration(ticks)*e.tick))
}

func tokenOf(err error) string {
    var fe *notation.FormatError
    var re *notation.RangeError
    switch {
    case errors.As(err, &fe):
        return fe.Token
    case errors.As(err, &re):
        return re.Token
    }
    return ""
}

// EncodeLine は1行分のトークンを処理する。不正なトークンは報告してスキップし、
// 出力エラーか ctx のキャンセルのときだけエラーを返す。
func (e *Encoder) EncodeLine(ctx context.Context, line string) error {
    for tok, err := range notation.Tokens(line) {
        if err != nil {
            e.onError(tokenOf(err), err)
            continue
        }
        if err := e.play(ctx, tok); err != nil {
            return err
        }
    }
    return nil
}

func (e *Encoder) play(ctx context.Context, tok notation.Token) error {
    if tok.Kind == notation.KindRest {
        switch e.cfg.Policy {
        case PolicyTimed, PolicyRealtime:
            return e.sleep(ctx, tok.Ticks)
        }
        return nil
    }

    p := uint8(tok.Pitch)
    if err := e.noteOn(p); err != nil {
        return err
    }
    switch e.cfg.Policy {
    case PolicyOn:
        e.played = append(e.played, p)
    case PolicyAuto:
        return e.noteOff(p)
    case PolicyTimed:
        serr := e.sleep(ctx, tok.Ticks)
        // 中断されてもノートオフは出しておく
        if err := e.noteOff(p); err != nil {
            return err
        }
        return serr
    case PolicyRealtime:
        e.sched.add(e.clk.Now().Add(time.Duration(tok.Ticks)*e.tick), p)
    }
    return nil
}

// Close は入力終了時の後始末をする。realtime は猶予つきでスケジューラを止め、
// on は鳴らしたピッチごとにノートオフを1つずつ（初出順で）出す。
// 1つもメッセージを出していなければ ErrNoOutput を返す。2回目以降は何もしない。
func (e *Encoder) Close() error {
    if e.closed {
        return nil
    }
    e.closed = true

    var firstErr error
    if e.sched != nil {
        if n := e.sched.stop(e.grace); n > 0 {
            e.log.WithField("pending", n).Warn("猶予時間内に送れなかったノートオフを破棄しました")
        }
    }
    if e.cfg.Policy == PolicyOn {
        for _, p := range lo.Uniq(e.played) {
            if err := e.noteOff(p); err != nil && firstErr == nil {
                firstErr = err
            }
        }
    }
    if err := e.sink.Flush(); err != nil && firstErr == nil {
        firstErr = err
    }
    if err := e.sink.Close(); err != nil && firstErr == nil {
        firstErr = err
    }
    if firstErr != nil {
        return firstErr
    }
    if e.emitted.Load() == 0 {
        return ErrNoOutput
    }
    return nil
}

// Encode は r を行ごとに読み、最後に Close する。
// ctx のキャンセルは正常終了として扱い、後始末を済ませて nil を返す。
func (e *Encoder) Encode(ctx context.Context, r io.Reader) (err error) {
    defer func() {
        cerr := e.Close()
        if ctx.Err() != nil && errors.Is(cerr, ErrNoOutput) {
            cerr = nil
        }
        if err == nil {
            err = cerr
        }
    }()

    lines := make(chan string)
    scanErr := make(chan error, 1)
    done := make(chan struct{})
    defer close(done)
    go func() {
        // 行の長さに上限は設けない
        br := bufio.NewReader(r)
        for {
            line, err := br.ReadString('\n')
            if line != "" {
                line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
                select {
                case lines <- line:
                case <-done:
                    return
                }
            }
            if err != nil {
                if errors.Is(err, io.EOF) {
                    err = nil
                }
                scanErr <- err
                close(lines)
                return
            }
        }
    }()

    for {
        select {
        case <-ctx.Done():
            e.log.Debug("キャンセルされたので停止します")
            return nil
        case line, ok := <-lines:
            if !ok {
                return pkgerrors.Wrap(<-scanErr, "read notation")
            }
            if err := e.EncodeLine(ctx, line); err != nil {
                if ctx.Err() != nil {
                    return nil
                }
                return err
            }
        }
    }
}
