// Package decoder は生の MIDI バイト列から音符テキスト（C4...... / ---）を組み立てる。
package decoder

import (
    "fmt"
    "io"
    "slices"
    "strings"
    "time"

    "github.com/samber/lo"
    "github.com/sirupsen/logrus"

    "midinotes/internal/clock"
    "midinotes/internal/midi"
    "midinotes/internal/notation"
)

// State はバイト列フレーミングの状態。
type State int

const (
    AwaitingStatus State = iota
    AwaitingData1
    AwaitingData2
)

func (s State) String() string {
    switch s {
    case AwaitingData1:
        return "awaiting-data1"
    case AwaitingData2:
        return "awaiting-data2"
    default:
        return "awaiting-status"
    }
}

// LineFunc は出力1行（改行なし）を受け取る。
type LineFunc func(line string) error

// Options はデコーダの構築時設定。
type Options struct {
    // ChannelFilter は 0 で全チャネル、1..16 でそのチャネルのみ。
    ChannelFilter int
    // Tick は量子化に使うティック長。0 なら notation.DecoderTick。
    Tick   time.Duration
    Clock  clock.Clock
    Logger logrus.FieldLogger
}

type activeNote struct {
    name  string
    start time.Time
}

// Decoder はバイト列の状態機械と発音中ノートを保持する。
// 状態はこの型のメソッドからのみ変更される（単一 goroutine で使うこと）。
type Decoder struct {
    emit LineFunc
    filter int
    tick   time.Duration
    clk    clock.Clock
    log    logrus.FieldLogger

    state  State
    status byte
    data1  byte

    active    map[uint8]activeNote
    lastEnd   time.Time
    anyPlayed bool
}

// New はデコーダを作る。ChannelFilter が 0..16 外なら ConfigError。
func New(emit LineFunc, opts Options) (*Decoder, error) {
    if opts.ChannelFilter < 0 || opts.ChannelFilter > 16 {
        return nil, &notation.ConfigError{Field: "channel filter", Value: opts.ChannelFilter, Reason: "must be between 0 (all) and 16"}
    }
    if opts.Tick < 0 {
        return nil, &notation.ConfigError{Field: "tick", Value: opts.Tick, Reason: "must be positive"}
    }
    if opts.Tick == 0 {
        opts.Tick = notation.DecoderTick
    }
    if opts.Clock == nil {
        opts.Clock = clock.Real{}
    }
    if opts.Logger == nil {
        opts.Logger = logrus.StandardLogger()
    }
    if emit == nil {
        emit = func(string) error { return nil }
    }
    return &Decoder{
        emit:   emit,
        filter: opts.ChannelFilter,
        tick:   opts.Tick,
        clk:    opts.Clock,
        log:    opts.Logger,
        active: map[uint8]activeNote{},
    }, nil
}

// WriterLines は1行ごとに改行を付けて書き込み、Flush を持つ Writer なら即座にフラッシュする。
func WriterLines(w io.Writer) LineFunc {
    return func(line string) error {
        if _, err := io.WriteString(w, line+"\n"); err != nil {
            return err
        }
        if f, ok := w.(interface{ Flush() error }); ok {
            return f.Flush()
        }
        return nil
    }
}

// State は現在のフレーミング状態を返す。
func (d *Decoder) State() State { return d.state }

// Active は発音中のノート数。
func (d *Decoder) Active() int { return len(d.active) }

// Write は p を1バイトずつ状態機械に通す。途中で出力エラーが起きたら、そこまでの数を返す。
func (d *Decoder) Write(p []byte) (int, error) {
    for i, b := range p {
        if err := d.WriteByte(b); err != nil {
            return i, err
        }
    }
    return len(p), nil
}

// WriteByte は1バイト進める。上位ビットが立ったバイトは常に新しいステータス。
// 3バイト目を受け取るとメッセージを処理し、同じステータスのまま Data1 待ちに戻る。
func (d *Decoder) WriteByte(b byte) error {
    if midi.IsStatus(b) {
        d.status = b
        d.state = AwaitingData1
        return nil
    }
    switch d.state {
    case AwaitingData1:
        d.data1 = b
        d.state = AwaitingData2
    case AwaitingData2:
        d.state = AwaitingData1
        return d.dispatch(d.status, d.data1, b)
    default:
        // ステータス前のデータバイトは捨てる
    }
    return nil
}

func (d *Decoder) dispatch(status, data1, data2 byte) error {
    ev := midi.ParseEvent(status, data1, data2, d.clk.Now())
    if d.filter != 0 && int(ev.Channel) != d.filter {
        return nil
    }
    d.log.WithFields(logrus.Fields{
        "status":   fmt.Sprintf("%02X", status),
        "channel":  ev.Channel,
        "pitch":    ev.Data1,
        "velocity": ev.Data2,
    }).Debug("MIDI メッセージ")

    switch ev.Type {
    case midi.NoteOn:
        if _, ok := d.active[ev.Data1]; ok {
            // 再トリガー: 先の発音は出力せず開始時刻だけ上書きする
            d.log.WithField("pitch", ev.Data1).Debug("retrigger, previous duration discarded")
        }
        d.active[ev.Data1] = activeNote{name: notation.PitchString(int(ev.Data1)), start: ev.Time}
    case midi.NoteOff:
        n, ok := d.active[ev.Data1]
        if !ok {
            return nil
        }
        delete(d.active, ev.Data1)
        return d.emitNote(n, ev.Time)
    }
    return nil
}

// emitNote は必要なら直前の休符行を出してから、音符行を出す。
func (d *Decoder) emitNote(n activeNote, end time.Time) error {
    if d.anyPlayed {
        gap := n.start.Sub(d.lastEnd)
        if gap > d.tick/2 {
            rest := notation.Quantize(gap, d.tick)
            if err := d.emit(strings.Repeat("-", rest)); err != nil {
                return err
            }
        }
    }
    ticks := notation.Quantize(end.Sub(n.start), d.tick)
    d.lastEnd = end
    d.anyPlayed = true
    return d.emit(n.name + strings.Repeat(".", ticks))
}

// Drain は発音中のノートを「今」ノートオフされたものとしてすべて出力する。
// フレーミングの途中状態には触れないので、どの時点で呼んでもよい。
func (d *Decoder) Drain() error {
    if len(d.active) == 0 {
        return nil
    }
    now := d.clk.Now()
    keys := lo.Keys(d.active)
    slices.Sort(keys)
    d.log.WithField("notes", len(keys)).Info("発音中のノートを出力して終了します")
    var firstErr error
    for _, k := range keys {
        n := d.active[k]
        delete(d.active, k)
        if err := d.emitNote(n, now); err != nil && firstErr == nil {
            firstErr = err
        }
    }
    return firstErr
}
