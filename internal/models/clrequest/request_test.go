package clrequest

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Empty(t, Parse(nil))
	assert.Empty(t, Parse(strings.NewReader("")))
	assert.Empty(t, Parse(strings.NewReader("{pas du json")))
	assert.Empty(t, Parse(strings.NewReader(`["a","b"]`)))
	assert.Empty(t, Parse(strings.NewReader(`"texte"`)))

	f := Parse(strings.NewReader(`{"orderId":"A1","amount":12.50}`))
	assert.Equal(t, "A1", f.String("orderId"))
	assert.Equal(t, "12.50", f.String("amount"))
}

func TestCoerce(t *testing.T) {
	f := Parse(strings.NewReader(`{"n":42,"b":true,"z":null,"o":{"k":"v"},"a":[1,2],"s":"  x  "}`))
	assert.Equal(t, "42", f.String("n"))
	assert.Equal(t, "true", f.String("b"))
	assert.Equal(t, "", f.String("z"))
	assert.Equal(t, `{"k":"v"}`, f.String("o"))
	assert.Equal(t, "[1,2]", f.String("a"))
	assert.Equal(t, "x", f.String("s"))
	assert.Equal(t, "", f.String("absent"))
	assert.Equal(t, "1.5", Coerce(1.5))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 250)
	assert.Equal(t, long[:200], Truncate(long, MaxFieldLength))
	assert.Equal(t, "abc", Truncate("abc", MaxFieldLength))
	assert.Equal(t, "", Truncate("abc", 0))

	// les caractères multi-octets ne sont jamais coupés
	accents := strings.Repeat("é", 201)
	cut := Truncate(accents, MaxFieldLength)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 200, utf8.RuneCountInString(cut))

	// tronquer est idempotent
	assert.Equal(t, cut, Truncate(cut, MaxFieldLength))
}

func TestExtractLog(t *testing.T) {
	page := strings.Repeat("p", 300)
	f := Parse(strings.NewReader(`{"ipFromClient":" 203.0.113.9 ","page":"` + page + `","note":7}`))

	req := ExtractLog(f, "Mozilla/5.0")
	assert.Equal(t, "203.0.113.9", req.IPFromClient)
	assert.Equal(t, "Mozilla/5.0", req.UserAgent)
	assert.Equal(t, page[:200], req.Page)
	assert.Equal(t, "7", req.Note)

	req = ExtractLog(Parse(strings.NewReader(`{"userAgent":"curl/8"}`)), "Mozilla/5.0")
	assert.Equal(t, "curl/8", req.UserAgent)

	req = ExtractLog(Fields{}, "")
	assert.Equal(t, LogRequest{}, req)
}

func TestExtractClick(t *testing.T) {
	f := Parse(strings.NewReader(`{"orderId":" A1 ","sessionId":"s1","amount":10,"currency":"SOL","address":"addr","meta":{"page":"/pay"}}`))
	req := ExtractClick(f)
	assert.Equal(t, "A1", req.OrderID)
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, "10", req.Amount)
	assert.Equal(t, "SOL", req.Currency)
	assert.Equal(t, "addr", req.Address)
	assert.Equal(t, map[string]any{"page": "/pay"}, req.Meta)

	req = ExtractClick(Parse(strings.NewReader(`{"meta":"pas un objet"}`)))
	assert.Empty(t, req.OrderID)
	assert.Nil(t, req.Meta)
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("body too large") }

func TestReadSurfacesBodyErrors(t *testing.T) {
	f, err := Read(failingReader{})
	assert.Error(t, err)
	assert.Empty(t, f)

	f, err = Read(strings.NewReader(`[1,2]`))
	assert.NoError(t, err)
	assert.Empty(t, f)

	f, err = Read(nil)
	assert.NoError(t, err)
	assert.Empty(t, f)
}

func TestReadTooLarge(t *testing.T) {
	_, err := Read(strings.NewReader(strings.Repeat("a", MaxBodyBytes+1)))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.True(t, IsTooLarge(err))
	assert.False(t, IsTooLarge(nil))

	f, err := Read(strings.NewReader(`{"page":"/"}`))
	assert.NoError(t, err)
	assert.Equal(t, "/", f.String("page"))
}
