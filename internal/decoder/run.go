package decoder

import (
    "context"
    "errors"
    "io"
    "iter"
    "time"

    pkgerrors "github.com/pkg/errors"
)

// devicePoll はデバイスが EOF / 0 バイトを返したときの再試行間隔。
const devicePoll = 10 * time.Millisecond

type chunk struct {
    buf []byte
    err error
}

// Run は src を読み尽くすまで（または ctx がキャンセルされるまで）デコードする。
// retryEOF が true のとき EOF を終端とみなさず、デバイスの再接続を待つように読み続ける。
// 終了時は必ず Drain し、キャンセルによる終了は正常終了（nil）として扱う。
func (d *Decoder) Run(ctx context.Context, src io.Reader, retryEOF bool) (err error) {
    defer func() {
        if derr := d.Drain(); derr != nil && err == nil {
            err = derr
        }
    }()

    chunks := make(chan chunk)
    done := make(chan struct{})
    defer close(done)
    go readLoop(src, retryEOF, chunks, done)

    for {
        select {
        case <-ctx.Done():
            d.log.Debug("キャンセルされたので停止します")
            return nil
        case c := <-chunks:
            if len(c.buf) > 0 {
                if _, werr := d.Write(c.buf); werr != nil {
                    return werr
                }
            }
            if c.err != nil {
                if errors.Is(c.err, io.EOF) {
                    return nil
                }
                return pkgerrors.Wrap(c.err, "read MIDI input")
            }
        }
    }
}

// readLoop は src を読み、受け取ったバイトの複製を chunks に送る。
// ブロック中の Read は中断できないので、done が閉じられた後の結果は捨てる。
func readLoop(src io.Reader, retryEOF bool, chunks chan<- chunk, done <-chan struct{}) {
    buf := make([]byte, 256)
    for {
        n, err := src.Read(buf)
        var c chunk
        if n > 0 {
            c.buf = append([]byte(nil), buf[:n]...)
        }
        retry := err == nil && n == 0 || retryEOF && errors.Is(err, io.EOF)
        if !retry {
            c.err = err
        }
        if c.buf != nil || c.err != nil {
            select {
            case chunks <- c:
            case <-done:
                return
            }
            if c.err != nil {
                return
            }
        }
        if retry {
            select {
            case <-time.After(devicePoll):
            case <-done:
                return
            }
        }
    }
}

var errStopped = errors.New("stopped by consumer")

// Lines は src をデコードし、出力行を順に返すイテレータ。
// 呼び出し側が途中でループを抜けた場合は、それ以上の行を返さずに入力を手放す。
func Lines(ctx context.Context, src io.Reader, opts Options) iter.Seq2[string, error] {
    return func(yield func(string, error) bool) {
        stopped := false
        emit := func(line string) error {
            if stopped {
                return errStopped
            }
            if !yield(line, nil) {
                stopped = true
                return errStopped
            }
            return nil
        }
        d, err := New(emit, opts)
        if err != nil {
            yield("", err)
            return
        }
        err = d.Run(ctx, src, false)
        if err != nil && !errors.Is(err, errStopped) && !stopped {
            yield("", err)
        }
    }
}
