package detect

import (
	"math/rand"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want ContentType
	}{
		{"empty", nil, ContentTypeASCII},
		{"ascii sentence", []byte("Here we have some ASCII encoded data"), ContentTypeASCII},
		{"ascii control bytes", []byte{0x00, 0x01, 0x7f, '\n'}, ContentTypeASCII},
		{"cyrillic", []byte("Тук имаме данни"), ContentTypeUTF8},
		{"mixed scripts", []byte("Тук имаме някои UTF-8 кодирани данни Εδώ δεδομένα"), ContentTypeUTF8},
		{"three byte", []byte("€"), ContentTypeUTF8},
		{"four byte", []byte("𝄞 clef"), ContentTypeUTF8},
		{"binary sample", []byte{0x18, 0x22, 0xf2, 0xfe, 0xff, 0x11, 0x23, 0x51}, ContentTypeBinary},
		{"overlong nul", []byte{0xC0, 0x80}, ContentTypeBinary},
		{"overlong c1", []byte{0xC1, 0xBF}, ContentTypeBinary},
		{"lowest valid two byte", []byte{0xC2, 0x80}, ContentTypeUTF8},
		{"lone continuation", []byte{'a', 0x80}, ContentTypeBinary},
		{"truncated two byte", []byte{'a', 0xD0}, ContentTypeBinary},
		{"truncated three byte", []byte{0xE2, 0x82}, ContentTypeBinary},
		{"truncated four byte", []byte{0xF0, 0x9D, 0x84}, ContentTypeBinary},
		{"bad continuation", []byte{0xE2, 0x28, 0xA1}, ContentTypeBinary},
		{"invalid lead f8", []byte{0xF8, 0x88, 0x80, 0x80, 0x80}, ContentTypeBinary},
		{"invalid lead ff", []byte{0xFF}, ContentTypeBinary},
		{"lead f7 accepted structurally", []byte{0xF7, 0xBF, 0xBF, 0xBF}, ContentTypeUTF8},
		{"invalid after valid", append([]byte("Тук"), 0xFE), ContentTypeBinary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.data))
		})
	}
}

func TestContentTypeString(t *testing.T) {
	assert.Equal(t, "ascii", ContentTypeASCII.String())
	assert.Equal(t, "utf8", ContentTypeUTF8.String())
	assert.Equal(t, "bin", ContentTypeBinary.String())
}

func TestClassify_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 5000; i++ {
		b := make([]byte, rng.Intn(64))
		rng.Read(b)

		got := Classify(b)

		highBit := false
		for _, c := range b {
			if c >= 0x80 {
				highBit = true
				break
			}
		}

		// No byte >= 0x80 is ASCII, and ASCII implies no such byte.
		assert.Equal(t, !highBit, got == ContentTypeASCII, "%x", b)

		// Every well-formed UTF-8 buffer is accepted.
		if highBit && utf8.Valid(b) {
			assert.Equal(t, ContentTypeUTF8, got, "%x", b)
		}
	}
}

func TestClassify_ValidTextIsNeverBinary(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for i := 0; i < 2000; i++ {
		runes := make([]rune, 1+rng.Intn(16))
		for j := range runes {
			r := rune(rng.Intn(utf8.MaxRune + 1))
			if !utf8.ValidRune(r) {
				r = 'x'
			}
			runes[j] = r
		}
		s := string(runes)
		assert.NotEqual(t, ContentTypeBinary, Classify([]byte(s)), "%q", s)
	}
}

func BenchmarkClassify(b *testing.B) {
	data := []byte("Тук имаме някои UTF-8 кодирани данни Εδώ δεδομένα, and some ASCII too")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Classify(data)
	}
}
