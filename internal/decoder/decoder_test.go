package decoder

import (
    "bytes"
    "context"
    "errors"
    "io"
    "strings"
    "testing"
    "time"

    "github.com/sirupsen/logrus"

    "midinotes/internal/clock"
    "midinotes/internal/notation"
)

const tick = notation.DecoderTick

func quietLogger() logrus.FieldLogger {
    l := logrus.New()
    l.SetOutput(io.Discard)
    return l
}

type harness struct {
    t     *testing.T
    clk   *clock.Fake
    d     *Decoder
    lines []string
}

func newHarness(t *testing.T, filter int) *harness {
    t.Helper()
    h := &harness{t: t, clk: clock.NewFake(time.Unix(1000, 0))}
    d, err := New(func(s string) error {
        h.lines = append(h.lines, s)
        return nil
    }, Options{ChannelFilter: filter, Clock: h.clk, Logger: quietLogger()})
    if err != nil {
        t.Fatalf("New error: %v", err)
    }
    h.d = d
    return h
}

func (h *harness) feed(b ...byte) {
    h.t.Helper()
    if _, err := h.d.Write(b); err != nil {
        h.t.Fatalf("Write error: %v", err)
    }
}

func (h *harness) want(lines ...string) {
    h.t.Helper()
    if strings.Join(h.lines, "|") != strings.Join(lines, "|") {
        h.t.Fatalf("lines=%q; want %q", h.lines, lines)
    }
}

func TestNew_InvalidFilter(t *testing.T) {
    for _, f := range []int{-1, 17} {
        _, err := New(nil, Options{ChannelFilter: f})
        var ce *notation.ConfigError
        if !errors.As(err, &ce) {
            t.Fatalf("filter %d: expected ConfigError, got %v", f, err)
        }
    }
}

func TestFraming(t *testing.T) {
    h := newHarness(t, 0)
    if h.d.State() != AwaitingStatus {
        t.Fatalf("initial state %v", h.d.State())
    }
    h.feed(0x3C, 0x40) // ステータス前のデータは無視
    if h.d.State() != AwaitingStatus || h.d.Active() != 0 {
        t.Fatalf("stray data bytes changed state: %v", h.d.State())
    }
    h.feed(0x90)
    if h.d.State() != AwaitingData1 {
        t.Fatalf("after status: %v", h.d.State())
    }
    h.feed(0x3C)
    if h.d.State() != AwaitingData2 {
        t.Fatalf("after data1: %v", h.d.State())
    }
    // 途中で新しいステータスが来たら組み立て直し
    h.feed(0x90)
    if h.d.State() != AwaitingData1 {
        t.Fatalf("status mid-message: %v", h.d.State())
    }
    h.feed(0x3E, 0x40)
    if h.d.State() != AwaitingData1 || h.d.Active() != 1 {
        t.Fatalf("after message: state=%v active=%d", h.d.State(), h.d.Active())
    }
}

func TestSingleNote(t *testing.T) {
    h := newHarness(t, 0)
    h.feed(0x90, 0x3C, 0x40)
    h.clk.Advance(6 * tick)
    h.feed(0x80, 0x3C, 0x00)
    h.want("C4......")
}

func TestVelocityZeroIsNoteOff(t *testing.T) {
    h := newHarness(t, 0)
    h.feed(0x90, 0x45, 0x50)
    h.clk.Advance(2 * tick)
    h.feed(0x90, 0x45, 0x00)
    h.want("A4..")
}

func TestRunningStatus(t *testing.T) {
    h := newHarness(t, 0)
    // 1つのステータスに続けて on / on(vel0) を送る
    h.feed(0x90, 0x3C, 0x40)
    h.clk.Advance(tick)
    h.feed(0x3C, 0x00)
    h.feed(0x3E, 0x40)
    h.clk.Advance(tick)
    h.feed(0x3E, 0x00)
    h.want("C4.", "D4.")
}

func TestQuantizeAndClamp(t *testing.T) {
    cases := []struct {
        held time.Duration
        want string
    }{
        {10 * time.Millisecond, "C4."},
        {tick + tick/2 - time.Millisecond, "C4."},
        {tick + tick/2, "C4.."},
        {10 * time.Second, "C4" + strings.Repeat(".", notation.MaxTicks)},
    }
    for _, c := range cases {
        h := newHarness(t, 0)
        h.feed(0x90, 0x3C, 0x40)
        h.clk.Advance(c.held)
        h.feed(0x80, 0x3C, 0x00)
        h.want(c.want)
    }
}

func TestRests(t *testing.T) {
    h := newHarness(t, 0)
    h.feed(0x90, 0x3C, 0x40)
    h.clk.Advance(tick)
    h.feed(0x80, 0x3C, 0x00)

    // tick/2 以下の隙間は休符にしない
    h.clk.Advance(tick / 2)
    h.feed(0x90, 0x3E, 0x40)
    h.clk.Advance(tick)
    h.feed(0x80, 0x3E, 0x00)

    h.clk.Advance(3 * tick)
    h.feed(0x90, 0x40, 0x40)
    h.clk.Advance(tick)
    h.feed(0x80, 0x40, 0x00)

    h.want("C4.", "D4.", "---", "E4.")
}

func TestNoLeadingRest(t *testing.T) {
    h := newHarness(t, 0)
    h.clk.Advance(5 * time.Second)
    h.feed(0x90, 0x3C, 0x40)
    h.clk.Advance(tick)
    h.feed(0x80, 0x3C, 0x00)
    h.want("C4.")
}

func TestChannelFilter(t *testing.T) {
    h := newHarness(t, 2)
    h.feed(0x90, 0x3C, 0x40) // ch1
    h.feed(0x91, 0x3E, 0x40) // ch2
    h.clk.Advance(tick)
    h.feed(0x80, 0x3C, 0x00)
    h.feed(0x81, 0x3E, 0x00)
    h.want("D4.")
}

func TestChannelFilterIsStableOnFilteredStream(t *testing.T) {
    stream := []byte{0x91, 0x3C, 0x40, 0x90, 0x40, 0x40, 0x81, 0x3C, 0x00, 0x80, 0x40, 0x00}
    run := func(filter int, in []byte) []string {
        h := newHarness(t, filter)
        for i := 0; i < len(in); i += 3 {
            h.feed(in[i : i+3]...)
            h.clk.Advance(tick)
        }
        return h.lines
    }
    once := run(2, stream)
    onlyCh2 := []byte{0x91, 0x3C, 0x40, 0x81, 0x3C, 0x00}
    // 同じ時間間隔で ch2 だけを流しても結果が同じになるか
    h := newHarness(t, 2)
    h.feed(onlyCh2[:3]...)
    h.clk.Advance(2 * tick)
    h.feed(onlyCh2[3:]...)
    if strings.Join(once, "|") != strings.Join(h.lines, "|") {
        t.Fatalf("filtered=%q; ch2-only=%q", once, h.lines)
    }
    if strings.Join(run(0, onlyCh2), "|") != "C4." {
        t.Fatalf("unfiltered ch2-only stream changed: %q", run(0, onlyCh2))
    }
}

func TestRetriggerRestartsNote(t *testing.T) {
    h := newHarness(t, 0)
    h.feed(0x90, 0x3C, 0x40)
    h.clk.Advance(4 * tick)
    h.feed(0x90, 0x3C, 0x40)
    h.clk.Advance(tick)
    h.feed(0x80, 0x3C, 0x00)
    // 先の4ティック分は出力されない
    h.want("C4.")
}

func TestOrphanNoteOffIgnored(t *testing.T) {
    h := newHarness(t, 0)
    h.feed(0x80, 0x3C, 0x00, 0xB0, 0x40, 0x7F, 0xC0, 0x05, 0x00)
    h.want()
}

func TestDrainSortedByPitch(t *testing.T) {
    h := newHarness(t, 0)
    h.feed(0x90, 0x43, 0x40, 0x90, 0x3C, 0x40)
    h.clk.Advance(2 * tick)
    if err := h.d.Drain(); err != nil {
        t.Fatal(err)
    }
    h.want("C4..", "G4..")
    if h.d.Active() != 0 {
        t.Fatalf("notes left after drain: %d", h.d.Active())
    }
}

func TestRun_EOFDrains(t *testing.T) {
    h := newHarness(t, 0)
    src := bytes.NewReader([]byte{0x90, 0x3C, 0x40, 0x90, 0x3E, 0x40, 0x80, 0x3C, 0x00})
    if err := h.d.Run(context.Background(), src, false); err != nil {
        t.Fatalf("Run error: %v", err)
    }
    h.want("C4.", "D4.")
}

func TestRun_CancelDrains(t *testing.T) {
    h := newHarness(t, 0)
    pr, pw := io.Pipe()
    defer pw.Close()
    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan error, 1)
    go func() { done <- h.d.Run(ctx, pr, true) }()

    if _, err := pw.Write([]byte{0x90, 0x3C, 0x40}); err != nil {
        t.Fatal(err)
    }
    cancel()
    select {
    case err := <-done:
        if err != nil {
            t.Fatalf("Run error on cancel: %v", err)
        }
    case <-time.After(2 * time.Second):
        t.Fatalf("Run did not stop on cancel")
    }
    // キャンセルと受信の順序は決まらないので、出力は 0 行か C4. の1行
    if len(h.lines) > 1 || len(h.lines) == 1 && h.lines[0] != "C4." {
        t.Fatalf("unexpected lines %q", h.lines)
    }
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestRun_ReadError(t *testing.T) {
    h := newHarness(t, 0)
    boom := errors.New("boom")
    err := h.d.Run(context.Background(), errReader{boom}, false)
    if !errors.Is(err, boom) {
        t.Fatalf("expected wrapped read error, got %v", err)
    }
}

func TestLines(t *testing.T) {
    clk := clock.NewFake(time.Unix(0, 0))
    src := bytes.NewReader([]byte{
        0x90, 0x3C, 0x40, 0x80, 0x3C, 0x00,
        0x90, 0x3E, 0x40, 0x80, 0x3E, 0x00,
        0x90, 0x40, 0x40, 0x80, 0x40, 0x00,
    })
    var got []string
    for line, err := range Lines(context.Background(), src, Options{Clock: clk, Logger: quietLogger()}) {
        if err != nil {
            t.Fatalf("Lines error: %v", err)
        }
        got = append(got, line)
        if len(got) == 2 {
            break
        }
    }
    if strings.Join(got, "|") != "C4.|D4." {
        t.Fatalf("got %q", got)
    }
}

func TestLines_ConfigError(t *testing.T) {
    for _, err := range Lines(context.Background(), bytes.NewReader(nil), Options{ChannelFilter: 99}) {
        var ce *notation.ConfigError
        if !errors.As(err, &ce) {
            t.Fatalf("expected ConfigError, got %v", err)
        }
        return
    }
    t.Fatalf("no error yielded")
}

func TestWriterLines(t *testing.T) {
    var buf bytes.Buffer
    emit := WriterLines(&buf)
    _ = emit("C4.")
    _ = emit("---")
    if buf.String() != "C4.\n---\n" {
        t.Fatalf("got %q", buf.String())
    }
}

// stutterReader は最初に何度か 0 バイト（エラーなし）を返してから中身を返す。
type stutterReader struct {
    empty int
    r     io.Reader
}

func (s *stutterReader) Read(p []byte) (int, error) {
    if s.empty > 0 {
        s.empty--
        return 0, nil
    }
    return s.r.Read(p)
}

func TestRun_RetriesShortRead(t *testing.T) {
    h := newHarness(t, 0)
    src := &stutterReader{empty: 3, r: bytes.NewReader([]byte{0x90, 0x3C, 0x40, 0x80, 0x3C, 0x00})}
    if err := h.d.Run(context.Background(), src, false); err != nil {
        t.Fatalf("Run error: %v", err)
    }
    h.want("C4.")
}

// eofOnceReader は1回目だけ EOF を返す（切断から復帰したデバイスの模擬）。
type eofOnceReader struct {
    hit bool
    r   io.Reader
}

func (e *eofOnceReader) Read(p []byte) (int, error) {
    if !e.hit {
        e.hit = true
        return 0, io.EOF
    }
    return e.r.Read(p)
}

func TestRun_DeviceRetriesEOF(t *testing.T) {
    h := newHarness(t, 0)
    unplugged := errors.New("unplugged")
    data := bytes.NewReader([]byte{0x90, 0x3C, 0x40, 0x80, 0x3C, 0x00})
    // EOF → データ → エラー。EOF で止まらなければデータが届き、最後のエラーで終わる
    src := &eofOnceReader{r: io.MultiReader(data, errReader{unplugged})}
    err := h.d.Run(context.Background(), src, true)
    if !errors.Is(err, unplugged) {
        t.Fatalf("expected read error after data, got %v", err)
    }
    h.want("C4.")
}
