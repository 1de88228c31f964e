package main

import (
    "context"
    "flag"
    "fmt"
    "io"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "midinotes/internal/clock"
    "midinotes/internal/config"
    "midinotes/internal/encoder"
    "midinotes/internal/midi"
    "midinotes/internal/notation"
)

type encodeArgs struct {
    Channel  int
    Velocity int
    NoteOff  string
    BPM      int
    Format   string
    Out      string
    SMF      string
    In       string
    Debug    bool
}

func (a *encodeArgs) encoderConfig() (encoder.Config, error) {
    p, err := encoder.ParsePolicy(a.NoteOff)
    if err != nil {
        return encoder.Config{}, err
    }
    c := encoder.Config{Channel: a.Channel, Velocity: a.Velocity, Policy: p, BPM: a.BPM}
    return c, c.Validate()
}

// parseEncodeArgs はフラグ > 位置引数 > 設定ファイル > 既定値 の順で値を決める。
// 位置引数: [channel] [velocity] [note_off] [bpm]
func parseEncodeArgs(args []string, eh flag.ErrorHandling) (*encodeArgs, error) {
    def := encoder.DefaultConfig()
    fs := flag.NewFlagSet("encode", eh)
    a := &encodeArgs{}
    fs.IntVar(&a.Channel, "channel", def.Channel, "MIDI チャネル (1-16)")
    fs.IntVar(&a.Velocity, "velocity", def.Velocity, "ベロシティ (0-127)")
    fs.StringVar(&a.NoteOff, "note-off", string(def.Policy), "ノートオフの出し方: off|on|auto|timed|realtime")
    fs.IntVar(&a.BPM, "bpm", def.BPM, "テンポ (30-300)")
    fs.StringVar(&a.Format, "format", "hex", "出力形式: hex|raw")
    fs.StringVar(&a.Out, "out", midi.Stdio, "出力先（ファイル/デバイスパス、port:名前、- は標準出力）")
    fs.StringVar(&a.SMF, "smf", "", "送信したメッセージを Standard MIDI File にも記録する")
    fs.StringVar(&a.In, "in", midi.Stdio, "音符テキストの入力ファイル（- は標準入力）")
    fs.BoolVar(&a.Debug, "debug", false, "デバッグログを有効化")
    configPath := fs.String("config", "", "設定ファイル (JSON/YAML) へのパス")
    fs.Usage = encodeUsage
    if err := fs.Parse(args); err != nil {
        return nil, err
    }

    set := config.Visited(fs)
    cfg, err := loadConfig(*configPath)
    if err != nil {
        return nil, err
    }
    if cfg != nil {
        set.Int("channel", &a.Channel, cfg.Encode.Channel)
        set.Int("velocity", &a.Velocity, cfg.Encode.Velocity)
        set.Text("note-off", &a.NoteOff, cfg.Encode.NoteOff)
        set.Int("bpm", &a.BPM, cfg.Encode.BPM)
        set.Text("format", &a.Format, cfg.Encode.Format)
        set.Text("out", &a.Out, cfg.Encode.Out)
        set.Text("smf", &a.SMF, cfg.Encode.SMF)
        set.Bool("debug", &a.Debug, cfg.Debug)
    }

    rest := fs.Args()
    if len(rest) > 4 {
        return nil, &notation.ConfigError{Field: "arguments", Value: rest, Reason: "usage: encode [channel] [velocity] [note_off] [bpm]"}
    }
    ints := []struct {
        pos  int
        flag string
        dst  *int
    }{
        {0, "channel", &a.Channel},
        {1, "velocity", &a.Velocity},
        {3, "bpm", &a.BPM},
    }
    for _, it := range ints {
        if it.pos >= len(rest) || set[it.flag] {
            continue
        }
        n, err := strconv.Atoi(rest[it.pos])
        if err != nil {
            return nil, &notation.ConfigError{Field: it.flag, Value: rest[it.pos], Reason: "must be an integer"}
        }
        *it.dst = n
    }
    if len(rest) > 2 && !set["note-off"] {
        a.NoteOff = rest[2]
    }

    switch a.Format = strings.ToLower(strings.TrimSpace(a.Format)); a.Format {
    case "hex", "raw":
    default:
        return nil, &notation.ConfigError{Field: "format", Value: a.Format, Reason: "must be hex or raw"}
    }
    return a, nil
}

func runEncode(ctx context.Context, args []string) error {
    a, err := parseEncodeArgs(args, flag.ExitOnError)
    if err != nil {
        return err
    }
    setupLogger(a.Debug)

    cfg, err := a.encoderConfig()
    if err != nil {
        return err
    }

    in, err := openNotation(a.In)
    if err != nil {
        return err
    }
    defer in.Close()

    w, err := midi.OpenSink(a.Out)
    if err != nil {
        return err
    }
    // timed / realtime はメッセージごとに書き出す。それ以外は最後にまとめて出す
    paced := cfg.Policy == encoder.PolicyTimed || cfg.Policy == encoder.PolicyRealtime
    var sink encoder.Sink
    if a.Format == "raw" {
        sink = encoder.NewRawSink(w)
    } else {
        sink = encoder.NewHexSink(w, paced)
    }
    clk := pacingClock(cfg.Policy)
    if a.SMF != "" {
        sink = encoder.MultiSink{sink, encoder.NewSMFSink(a.SMF, cfg.BPM, clk)}
    }

    enc, err := encoder.New(cfg, sink, encoder.WithClock(clk), encoder.WithLogger(logrus.StandardLogger()))
    if err != nil {
        _ = sink.Close()
        return err
    }
    logrus.WithFields(logrus.Fields{
        "channel":  cfg.Channel,
        "velocity": cfg.Velocity,
        "note_off": cfg.Policy,
        "bpm":      cfg.BPM,
        "tick":     cfg.Tick(),
    }).Debug("エンコード開始")
    return enc.Encode(ctx, in)
}

// pacingSpin は timed / realtime で待機の最後にスピンする時間。
const pacingSpin = 2 * time.Millisecond

func pacingClock(p encoder.Policy) clock.Real {
    if p == encoder.PolicyTimed || p == encoder.PolicyRealtime {
        return clock.Real{SpinWin: pacingSpin}
    }
    return clock.Real{}
}

func openNotation(id string) (io.ReadCloser, error) {
    id = midi.NormalizeSource(id)
    if id == midi.Stdio {
        return io.NopCloser(os.Stdin), nil
    }
    f, err := os.Open(id)
    if err != nil {
        return nil, fmt.Errorf("入力ファイルを開けません: %w", err)
    }
    return f, nil
}

func encodeUsage() {
    fmt.Fprintln(os.Stderr, "Usage: midinotes encode [options] [channel] [velocity] [note_off] [bpm]")
    fmt.Fprintln(os.Stderr, "\n説明: 音符テキストを行ごとに読み、MIDI ノートオン/オフを出力します。")
    fmt.Fprintln(os.Stderr, "      不正なトークンは警告を出してスキップします。")
    fmt.Fprintln(os.Stderr, "\n主なオプション:")
    fmt.Fprintln(os.Stderr, "  -channel   MIDI チャネル (1-16, 既定 1)")
    fmt.Fprintln(os.Stderr, "  -velocity  ベロシティ (0-127, 既定 64)")
    fmt.Fprintln(os.Stderr, "  -note-off  off: ノートオンのみ / on: 最後に各ピッチのノートオフ / auto: 直後にノートオフ")
    fmt.Fprintln(os.Stderr, "             timed: 音価ぶん待ってノートオフ / realtime: ノートオフを予約して次へ進む")
    fmt.Fprintln(os.Stderr, "  -bpm       テンポ (30-300, 既定 120)。1ティック = 四分音符の1/6")
    fmt.Fprintln(os.Stderr, "  -format    hex（\"90 3C 40 ...\"）か raw（バイナリ）")
    fmt.Fprintln(os.Stderr, "  -out       出力先。port:名前 でネイティブ出力（ビルドタグ 'midi_native' が必要）")
    fmt.Fprintln(os.Stderr, "  -smf       送信内容を .mid ファイルにも記録する")
    fmt.Fprintln(os.Stderr, "  -in        入力ファイル (既定: 標準入力)")
    fmt.Fprintln(os.Stderr, "  -config    設定ファイル (JSON/YAML)")
    fmt.Fprintln(os.Stderr, "  -debug     送信したメッセージをすべてログ出力する")
}
