package encoder

import (
    "bufio"
    "fmt"
    "io"
    "sync"
    "time"

    "github.com/pkg/errors"
    "gitlab.com/gomidi/midi/v2/smf"

    "midinotes/internal/clock"
)

// Sink はエンコード結果（3バイトのメッセージ単位）の書き出し先。
// WriteMessage はスケジューラの goroutine からも呼ばれるので、実装は並行呼び出しに耐えること。
type Sink interface {
    WriteMessage(msg []byte) error
    Flush() error
    Close() error
}

// HexSink は "90 3C 40 80 3C 00" 形式で書く。最後の Close で改行を1つ出す。
// Paced が true の場合はメッセージごとにフラッシュする（timed / realtime 用）。
type HexSink struct {
    mu      sync.Mutex
    w       *bufio.Writer
    closer  io.Closer
    paced   bool
    written bool
}

// NewHexSink は w に書く HexSink を作る。w が io.Closer なら Close で閉じる。
func NewHexSink(w io.Writer, paced bool) *HexSink {
    s := &HexSink{w: bufio.NewWriter(w), paced: paced}
    if c, ok := w.(io.Closer); ok {
        s.closer = c
    }
    return s
}

func (s *HexSink) WriteMessage(msg []byte) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, b := range msg {
        if s.written {
            if err := s.w.WriteByte(' '); err != nil {
                return err
            }
        }
        if _, err := fmt.Fprintf(s.w, "%02X", b); err != nil {
            return err
        }
        s.written = true
    }
    if s.paced {
        return s.w.Flush()
    }
    return nil
}

func (s *HexSink) Flush() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.w.Flush()
}

func (s *HexSink) Close() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    var err error
    if s.written {
        err = s.w.WriteByte('\n')
    }
    if ferr := s.w.Flush(); err == nil {
        err = ferr
    }
    if s.closer != nil {
        if cerr := s.closer.Close(); err == nil {
            err = cerr
        }
    }
    return err
}

// RawSink はバイナリのまま書く。rawmidi デバイスや port: 出力向け。
type RawSink struct {
    mu sync.Mutex
    w  io.Writer
}

func NewRawSink(w io.Writer) *RawSink {
    return &RawSink{w: w}
}

func (s *RawSink) WriteMessage(msg []byte) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    _, err := s.w.Write(msg)
    return err
}

func (s *RawSink) Flush() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if f, ok := s.w.(interface{ Flush() error }); ok {
        return f.Flush()
    }
    return nil
}

func (s *RawSink) Close() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if c, ok := s.w.(io.Closer); ok {
        return c.Close()
    }
    return nil
}

// SMFTicksPerQuarter は記録する SMF の分解能。
const SMFTicksPerQuarter = 96

type smfEvent struct {
    at  time.Duration
    msg []byte
}

// SMFSink は書き込まれたメッセージを経過時間つきで記録し、Close で format 0 の SMF を書く。
type SMFSink struct {
    mu     sync.Mutex
    path   string
    bpm    int
    clk    clock.Clock
    start  time.Time
    events []smfEvent
}

// NewSMFSink は path に書き出す SMFSink を作る。経過時間は clk の最初の呼び出しから数える。
func NewSMFSink(path string, bpm int, clk clock.Clock) *SMFSink {
    if clk == nil {
        clk = clock.Real{}
    }
    return &SMFSink{path: path, bpm: bpm, clk: clk, start: clk.Now()}
}

func (s *SMFSink) WriteMessage(msg []byte) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.events = append(s.events, smfEvent{at: s.clk.Now().Sub(s.start), msg: append([]byte(nil), msg...)})
    return nil
}

func (s *SMFSink) Flush() error { return nil }

// Close は記録内容を SMF として書き出す。
func (s *SMFSink) Close() error {
    s.mu.Lock()
    defer s.mu.Unlock()
    file, err := s.build()
    if err != nil {
        return err
    }
    if err := file.WriteFile(s.path); err != nil {
        return errors.Wrapf(err, "write SMF %s", s.path)
    }
    return nil
}

// WriteTo は記録内容を SMF として w に書く。
func (s *SMFSink) WriteTo(w io.Writer) (int64, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    file, err := s.build()
    if err != nil {
        return 0, err
    }
    return file.WriteTo(w)
}

func (s *SMFSink) build() (*smf.SMF, error) {
    file := smf.New()
    file.TimeFormat = smf.MetricTicks(SMFTicksPerQuarter)

    var tr smf.Track
    tr.Add(0, smf.MetaTempo(float64(s.bpm)))
    var last uint32
    for _, ev := range s.events {
        abs := s.durationToTicks(ev.at)
        if abs < last {
            // realtime ではオンとオフの到着順が前後しうる
            abs = last
        }
        tr.Add(abs-last, ev.msg)
        last = abs
    }
    tr.Close(0)
    if err := file.Add(tr); err != nil {
        return nil, errors.Wrap(err, "build SMF track")
    }
    return file, nil
}

func (s *SMFSink) durationToTicks(d time.Duration) uint32 {
    if d <= 0 || s.bpm <= 0 {
        return 0
    }
    quarter := time.Minute / time.Duration(s.bpm)
    return uint32((d*SMFTicksPerQuarter + quarter/2) / quarter)
}

// MultiSink は複数の Sink に同じメッセージを書く。
type MultiSink []Sink

func (m MultiSink) WriteMessage(msg []byte) error {
    var first error
    for _, s := range m {
        if err := s.WriteMessage(msg); err != nil && first == nil {
            first = err
        }
    }
    return first
}

func (m MultiSink) Flush() error {
    var first error
    for _, s := range m {
        if err := s.Flush(); err != nil && first == nil {
            first = err
        }
    }
    return first
}

func (m MultiSink) Close() error {
    var first error
    for _, s := range m {
        if err := s.Close(); err != nil && first == nil {
            first = err
        }
    }
    return first
}
