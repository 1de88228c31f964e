package main

import (
    "context"
    "errors"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    "github.com/mattn/go-isatty"
    "github.com/sirupsen/logrus"

    "midinotes/internal/config"
)

// これらは ldflags で上書き可能:
// go build -ldflags "-X main.version=1.2.3 -X main.commit=abcd123 -X main.date=2025-08-12T01:23:45Z"
var (
    version = "dev"
    commit  = "none"
    date    = "unknown"
)

func main() {
    if len(os.Args) < 2 {
        usage()
        os.Exit(2)
    }

    // 出力先が閉じられたら書き込みエラー（EPIPE）として受け取り、静かに終了する
    signal.Ignore(syscall.SIGPIPE)
    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

    var err error
    switch os.Args[1] {
    case "decode":
        err = runDecode(ctx, os.Args[2:])
    case "encode":
        err = runEncode(ctx, os.Args[2:])
    case "ls-devices", "devices", "list":
        err = runDevices()
    case "version", "-v", "--version":
        printVersion()
    case "help", "-h", "--help":
        if len(os.Args) > 2 {
            switch os.Args[2] {
            case "decode":
                decodeUsage()
            case "encode":
                encodeUsage()
            default:
                usage()
            }
        } else {
            usage()
        }
    default:
        logrus.Errorf("不明なサブコマンド: %s", os.Args[1])
        usage()
        stop()
        os.Exit(2)
    }
    stop()
    os.Exit(exitCode(err))
}

func usage() {
    fmt.Println("midinotes - MIDI バイト列と音符テキスト（C4...... / ---）の相互変換")
    fmt.Println("")
    fmt.Println("使用方法:")
    fmt.Println("  midinotes <command> [options] [args]")
    fmt.Println("")
    fmt.Println("コマンド:")
    fmt.Println("  decode      MIDI 入力を読み、音符テキストを1行ずつ出力")
    fmt.Println("  encode      音符テキストを読み、MIDI メッセージ（hex/raw）を出力")
    fmt.Println("  ls-devices  利用可能な MIDI デバイス一覧を表示")
    fmt.Println("  version     バージョン情報を表示")
    fmt.Println("")
    fmt.Println("ヘルプ:")
    fmt.Println("  midinotes help decode   デコードの詳細ヘルプ")
    fmt.Println("  midinotes help encode   エンコードの詳細ヘルプ")
    fmt.Println("")
    fmt.Println("記法:")
    fmt.Println("  C4......  C4 を6ティック（四分音符1つ）。ドット1つ = 1ティック（四分音符の1/6）")
    fmt.Println("  F#5. Bb3  シャープ/フラット可。ドットなしは1ティック")
    fmt.Println("  ---       3ティックの休符")
    fmt.Println("")
    fmt.Println("例:")
    fmt.Println("  midinotes decode /dev/snd/midiC2D0 1")
    fmt.Println("  echo 'C4.. D4. -- E4...' | midinotes encode 1 64 auto 120")
    fmt.Println("  echo 'C4...... E4...... G4......' | midinotes encode -note-off timed | midinotes decode -hex -")
}

func printVersion() {
    fmt.Printf("midinotes %s (commit %s, built %s)\n", version, commit, date)
}

// setupLogger は診断出力を stderr に向け、-debug でデバッグレベルにする。
func setupLogger(debug bool) {
    logrus.SetOutput(os.Stderr)
    logrus.SetFormatter(&logrus.TextFormatter{
        DisableTimestamp: !debug,
        ForceColors:      stderrIsTerminal(),
    })
    if debug {
        logrus.SetLevel(logrus.DebugLevel)
    } else {
        logrus.SetLevel(logrus.InfoLevel)
    }
}

func stderrIsTerminal() bool {
    fd := os.Stderr.Fd()
    return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// loadConfig は -config 指定のファイル、無ければ既定パスの設定を読む。どちらも無ければ nil。
func loadConfig(path string) (*config.Config, error) {
    explicit := path != ""
    if !explicit {
        path = config.DefaultPath()
        if path == "" {
            return nil, nil
        }
    }
    c, err := config.Load(path)
    if err != nil {
        if !explicit && errors.Is(err, os.ErrNotExist) {
            return nil, nil
        }
        return nil, fmt.Errorf("-config の読み込みに失敗しました (%s): %w", path, err)
    }
    logrus.WithField("path", path).Debug("設定ファイルを読み込みました")
    return c, nil
}

// exitCode はエラーを終了コードに変換する。読み手が先にパイプを閉じた場合は正常終了扱い。
func exitCode(err error) int {
    switch {
    case err == nil:
        return 0
    case errors.Is(err, syscall.EPIPE):
        return 0
    }
    logrus.Errorf("Error: %v", err)
    return 1
}
