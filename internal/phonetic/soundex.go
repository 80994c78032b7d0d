// Package phonetic computes sound-alike codes for words.
//
// The default algorithm is American Soundex: a letter followed by three
// digits, so that names that sound alike ("Smith", "Smyth") share a code.
package phonetic

import "strings"

// soundexMapping holds the digit for each letter A-Z. '0' letters (vowels,
// H, W, Y) are not coded.
const soundexMapping = "01230120022455012623010202"

// codeLength is the fixed length of a non-empty Soundex code.
const codeLength = 4

// Encoder turns a single token into a phonetic code.
// An empty result means the token carries no phonetic signal.
type Encoder interface {
	Encode(token string) string
}

// EncoderFunc adapts a plain function to the Encoder interface.
type EncoderFunc func(token string) string

// Encode implements Encoder.
func (f EncoderFunc) Encode(token string) string {
	return f(token)
}

// SoundexEncoder is the stateless default Encoder.
var SoundexEncoder Encoder = EncoderFunc(Soundex)

// Soundex returns the American Soundex code of token.
//
// Only ASCII letters are considered; everything else is dropped before
// encoding. H and W are skipped entirely, so letters with the same digit on
// either side of them collapse into one, while vowels separate them.
// Tokens without any letter encode to "".
func Soundex(token string) string {
	letters := clean(token)
	if letters == "" {
		return ""
	}

	out := make([]byte, 0, codeLength)
	out = append(out, letters[0])
	last := digit(letters[0])

	for i := 1; i < len(letters) && len(out) < codeLength; i++ {
		ch := letters[i]
		if ch == 'H' || ch == 'W' {
			continue
		}
		d := digit(ch)
		if d != '0' && d != last {
			out = append(out, d)
		}
		last = d
	}

	for len(out) < codeLength {
		out = append(out, '0')
	}
	return string(out)
}

// clean upper-cases token and keeps only A-Z.
func clean(token string) string {
	var sb strings.Builder
	sb.Grow(len(token))
	for i := 0; i < len(token); i++ {
		ch := token[i]
		if ch >= 'a' && ch <= 'z' {
			ch -= 'a' - 'A'
		}
		if ch >= 'A' && ch <= 'Z' {
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

func digit(ch byte) byte {
	return soundexMapping[ch-'A']
}
