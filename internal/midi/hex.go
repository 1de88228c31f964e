package midi

import (
    "bufio"
    "io"

    "github.com/pkg/errors"
)

// hexReader は "90 3C 40 80 3C 00" 形式のテキストをバイト列に戻す。
// 2桁そろった時点でバイトを返すので、区切りを待たずにリアルタイムで流れる。
type hexReader struct {
    r    *bufio.Reader
    hi   byte
    half bool
}

// NewHexReader はエンコーダの hex 出力を生バイトとして読む Reader を返す。
func NewHexReader(r io.Reader) io.Reader {
    return &hexReader{r: bufio.NewReader(r)}
}

func (h *hexReader) Read(p []byte) (int, error) {
    n := 0
    for n < len(p) {
        // 手元に出力があるなら、それ以上はブロックしない
        if n > 0 && h.r.Buffered() == 0 {
            break
        }
        c, err := h.r.ReadByte()
        if err != nil {
            if err == io.EOF && h.half {
                err = errors.Wrap(io.ErrUnexpectedEOF, "odd number of hex digits")
            }
            return n, err
        }
        switch {
        case c == ' ' || c == '\t' || c == '\n' || c == '\r':
            if h.half {
                return n, errors.New("odd number of hex digits")
            }
        case isHexDigit(c):
            v := hexValue(c)
            if !h.half {
                h.hi, h.half = v, true
                continue
            }
            p[n] = h.hi<<4 | v
            n++
            h.half = false
        default:
            return n, errors.Errorf("invalid hex character %q", c)
        }
    }
    return n, nil
}

func isHexDigit(c byte) bool {
    return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func hexValue(c byte) byte {
    switch {
    case c >= 'a':
        return c - 'a' + 10
    case c >= 'A':
        return c - 'A' + 10
    default:
        return c - '0'
    }
}
