package notation

import (
    "iter"
    "regexp"
    "strconv"
    "strings"
)

// Kind はトークンの種別。
type Kind int

const (
    KindPitch Kind = iota
    KindRest
)

func (k Kind) String() string {
    if k == KindRest {
        return "rest"
    }
    return "pitch"
}

// Token は1トークンの解析結果。Rest の場合 Pitch/Octave は使わない。
type Token struct {
    Kind   Kind
    Pitch  int
    Octave int
    Ticks  int
    Text   string
}

var (
    restPattern = regexp.MustCompile(`^-+$`)
    // 大文字化してから照合するので b は B になる。
    notePattern = regexp.MustCompile(`^([A-G][#B]?)([0-9])(\.*)$`)
)

// ParseToken は1トークンを解析する。休符 (-+) を先に試し、次に音符を試す。
// ドットなしの音符は 1 ティック。
func ParseToken(s string) (Token, error) {
    s = strings.TrimSpace(s)
    if restPattern.MatchString(s) {
        return Token{Kind: KindRest, Ticks: len(s), Text: s}, nil
    }
    m := notePattern.FindStringSubmatch(strings.ToUpper(s))
    if m == nil {
        return Token{}, &FormatError{Token: s}
    }
    octave, _ := strconv.Atoi(m[2])
    ticks := len(m[3])
    if ticks == 0 {
        ticks = 1
    }
    p, err := NameToPitch(m[1], octave)
    if err != nil {
        switch e := err.(type) {
        case *RangeError:
            e.Token = s
        case *FormatError:
            e.Token = s
        }
        return Token{}, err
    }
    return Token{Kind: KindPitch, Pitch: p, Octave: octave, Ticks: ticks, Text: s}, nil
}

// Tokens は1行を空白で区切り、トークンごとに (Token, error) を順に返す。
// 不正なトークンはエラーとして返るだけで、後続のトークンは引き続き解析される。
func Tokens(line string) iter.Seq2[Token, error] {
    return func(yield func(Token, error) bool) {
        for _, f := range strings.Fields(line) {
            if !yield(ParseToken(f)) {
                return
            }
        }
    }
}

// ParseLine は Tokens の結果を有効トークンとエラーに分けて返す。
func ParseLine(line string) ([]Token, []error) {
    var toks []Token
    var errs []error
    for t, err := range Tokens(line) {
        if err != nil {
            errs = append(errs, err)
            continue
        }
        toks = append(toks, t)
    }
    return toks, errs
}
