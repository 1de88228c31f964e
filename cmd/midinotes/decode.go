package main

import (
    "bufio"
    "context"
    "flag"
    "fmt"
    "io"
    "os"
    "strconv"
    "time"

    "github.com/sirupsen/logrus"

    "midinotes/internal/config"
    "midinotes/internal/decoder"
    "midinotes/internal/midi"
    "midinotes/internal/notation"
)

type decodeArgs struct {
    Device  string
    Channel int
    Tick    time.Duration
    Hex     bool
    Debug   bool
}

// parseDecodeArgs はフラグ > 位置引数 > 設定ファイル > 既定値 の順で値を決める。
// 位置引数: [device] [channel_filter]（元のツールと同じ並び）
func parseDecodeArgs(args []string, eh flag.ErrorHandling) (*decodeArgs, error) {
    fs := flag.NewFlagSet("decode", eh)
    a := &decodeArgs{}
    fs.StringVar(&a.Device, "device", midi.DefaultDevice, "MIDI ソース（デバイスパス、port:名前、- は標準入力）")
    fs.IntVar(&a.Channel, "channel", 0, "受け付ける MIDI チャネル (1-16、0 は全て)")
    fs.DurationVar(&a.Tick, "tick", notation.DecoderTick, "量子化に使う1ティックの長さ")
    fs.BoolVar(&a.Hex, "hex", false, "入力を hex テキスト（encode の出力形式）として読む")
    fs.BoolVar(&a.Debug, "debug", false, "デバッグログを有効化")
    configPath := fs.String("config", "", "設定ファイル (JSON/YAML) へのパス")
    fs.Usage = decodeUsage
    if err := fs.Parse(args); err != nil {
        return nil, err
    }

    set := config.Visited(fs)
    cfg, err := loadConfig(*configPath)
    if err != nil {
        return nil, err
    }
    if cfg != nil {
        set.Text("device", &a.Device, cfg.Decode.Device)
        set.Int("channel", &a.Channel, cfg.Decode.Channel)
        set.Bool("hex", &a.Hex, cfg.Decode.Hex)
        set.Bool("debug", &a.Debug, cfg.Debug)
        if cfg.Decode.Tick != "" && !set["tick"] {
            d, err := time.ParseDuration(cfg.Decode.Tick)
            if err != nil {
                return nil, &notation.ConfigError{Field: "tick", Value: cfg.Decode.Tick, Reason: err.Error()}
            }
            a.Tick = d
        }
    }

    rest := fs.Args()
    if len(rest) > 2 {
        return nil, &notation.ConfigError{Field: "arguments", Value: rest, Reason: "usage: decode [device] [channel_filter]"}
    }
    if len(rest) > 0 && !set["device"] {
        a.Device = rest[0]
    }
    if len(rest) > 1 && !set["channel"] {
        n, err := strconv.Atoi(rest[1])
        if err != nil {
            return nil, &notation.ConfigError{Field: "channel filter", Value: rest[1], Reason: "must be an integer"}
        }
        a.Channel = n
    }
    return a, nil
}

func runDecode(ctx context.Context, args []string) error {
    a, err := parseDecodeArgs(args, flag.ExitOnError)
    if err != nil {
        return err
    }
    setupLogger(a.Debug)

    out := bufio.NewWriter(os.Stdout)
    defer out.Flush()
    // 入力を開く前に設定を検証する
    d, err := decoder.New(decoder.WriterLines(out), decoder.Options{
        ChannelFilter: a.Channel,
        Tick:          a.Tick,
        Logger:        logrus.StandardLogger(),
    })
    if err != nil {
        return err
    }

    src, err := midi.OpenSource(a.Device)
    if err != nil {
        reportAlternatives()
        return err
    }
    defer src.Close()

    var r io.Reader = src
    if a.Hex {
        r = midi.NewHexReader(src)
    }

    fields := logrus.Fields{"source": src.Name}
    if a.Channel != 0 {
        fields["channel"] = a.Channel
    } else {
        fields["channel"] = "all"
    }
    logrus.WithFields(fields).Info("MIDI 入力を読み取ります")
    if stderrIsTerminal() {
        logrus.Info("Ctrl+C で停止します")
    }
    return d.Run(ctx, r, src.Device)
}

// reportAlternatives はソースを開けなかったときに、見つかったデバイスを案内する。
func reportAlternatives() {
    alts := midi.Alternatives()
    if len(alts) == 0 {
        logrus.Warn("MIDI デバイスが見つかりません")
        return
    }
    logrus.Info("利用可能な MIDI デバイス:")
    for _, d := range alts {
        logrus.Infof("  %s", d)
    }
}

func decodeUsage() {
    fmt.Fprintln(os.Stderr, "Usage: midinotes decode [options] [device] [channel_filter]")
    fmt.Fprintln(os.Stderr, "\n説明: MIDI のバイト列を読み、ノートオフごとに音符テキストを1行出力します。")
    fmt.Fprintln(os.Stderr, "      1ティック（既定 83ms）の半分を超える無音は休符（---）として出力します。")
    fmt.Fprintln(os.Stderr, "\n主なオプション:")
    fmt.Fprintln(os.Stderr, "  -device    MIDI ソース (既定: "+midi.DefaultDevice+")。port:名前 でネイティブ入力、- で標準入力")
    fmt.Fprintln(os.Stderr, "  -channel   受け付けるチャネル (1-16、0 は全て)")
    fmt.Fprintln(os.Stderr, "  -tick      量子化の1ティック (例: 83ms)")
    fmt.Fprintln(os.Stderr, "  -hex       入力を \"90 3C 40 ...\" 形式の hex テキストとして読む")
    fmt.Fprintln(os.Stderr, "  -config    設定ファイル (JSON/YAML)")
    fmt.Fprintln(os.Stderr, "  -debug     受信したメッセージをすべてログ出力する")
    fmt.Fprintln(os.Stderr, "\n注: port: 入力にはビルドタグ 'midi_native' が必要です。")
}
