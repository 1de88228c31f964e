package encoder_test

import (
    "context"
    "io"
    "strings"
    "testing"
    "time"

    "github.com/sirupsen/logrus"

    "midinotes/internal/clock"
    "midinotes/internal/decoder"
    "midinotes/internal/encoder"
    "midinotes/internal/notation"
)

// decoderSink はエンコーダの出力をそのままデコーダに流す。
type decoderSink struct{ d *decoder.Decoder }

func (s decoderSink) WriteMessage(msg []byte) error {
    _, err := s.d.Write(msg)
    return err
}
func (s decoderSink) Flush() error { return nil }
func (s decoderSink) Close() error { return s.d.Drain() }

func TestTimedRoundTrip(t *testing.T) {
    log := logrus.New()
    log.SetOutput(io.Discard)

    input := "C4...... D4.. -- E4... G#5. Bb2............"
    for _, bpm := range []int{120, 97, 150} {
        clk := clock.NewFake(time.Unix(0, 0))
        var lines []string
        dec, err := decoder.New(func(s string) error {
            lines = append(lines, s)
            return nil
        }, decoder.Options{Clock: clk, Tick: notation.TickDuration(bpm), Logger: log})
        if err != nil {
            t.Fatal(err)
        }
        cfg := encoder.Config{Channel: 3, Velocity: 90, Policy: encoder.PolicyTimed, BPM: bpm}
        enc, err := encoder.New(cfg, decoderSink{dec}, encoder.WithClock(clk), encoder.WithLogger(log))
        if err != nil {
            t.Fatal(err)
        }
        if err := enc.Encode(context.Background(), strings.NewReader(input)); err != nil {
            t.Fatalf("bpm %d: Encode error: %v", bpm, err)
        }

        want, errs := notation.ParseLine(input)
        if len(errs) != 0 {
            t.Fatalf("input did not parse: %v", errs)
        }
        got, errs := notation.ParseLine(strings.Join(lines, " "))
        if len(errs) != 0 {
            t.Fatalf("decoded output did not parse: %v (%q)", errs, lines)
        }
        if len(got) != len(want) {
            t.Fatalf("bpm %d: decoded %q; want %d tokens", bpm, lines, len(want))
        }
        for i := range want {
            if got[i].Kind != want[i].Kind || got[i].Pitch != want[i].Pitch {
                t.Fatalf("bpm %d token %d: got %+v; want %+v", bpm, i, got[i], want[i])
            }
            if d := got[i].Ticks - want[i].Ticks; d < -1 || d > 1 {
                t.Fatalf("bpm %d token %d: ticks %d; want %d±1", bpm, i, got[i].Ticks, want[i].Ticks)
            }
        }
    }
}
