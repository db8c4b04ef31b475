// Package clrequest normalise les champs bruts des requêtes entrantes.
// Une entrée invalide est convertie, jamais rejetée. Seule la lecture du corps peut échouer.
package clrequest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxFieldLength borne les champs texte libres avant persistance
const MaxFieldLength = 200

// MaxBodyBytes borne la taille d'un corps JSON (1 Mo)
const MaxBodyBytes = 1 << 20

var ErrBodyTooLarge = errors.New("request body too large")

// Fields est le corps JSON décodé d'une requête
type Fields map[string]any

// LogRequest contient les champs d'un événement POST /log-ip
type LogRequest struct {
	IPFromClient string
	UserAgent    string
	Page         string
	Note         string
}

// ClickRequest contient les champs d'un événement POST /metrics/payment-click
type ClickRequest struct {
	OrderID   string
	SessionID string
	Amount    string
	Currency  string
	Address   string
	Meta      map[string]any
}

// Parse décode un corps JSON. Un corps vide, illisible ou qui n'est pas un objet
// donne une map vide.
func Parse(r io.Reader) Fields {
	f, _ := Read(r)
	return f
}

// Read fait comme Parse mais remonte l'erreur de lecture du corps, par exemple
// un dépassement de http.MaxBytesReader. Le JSON invalide n'est jamais une erreur.
func Read(r io.Reader) (Fields, error) {
	if r == nil {
		return Fields{}, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes+1))
	if err != nil {
		return Fields{}, err
	}
	if len(data) > MaxBodyBytes {
		return Fields{}, ErrBodyTooLarge
	}
	return decode(data), nil
}

// IsTooLarge reconnaît les deux façons dont un corps trop gros est signalé
func IsTooLarge(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.Is(err, ErrBodyTooLarge) || errors.As(err, &maxBytes)
}

func decode(data []byte) Fields {
	if len(bytes.TrimSpace(data)) == 0 {
		return Fields{}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Fields{}
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return Fields{}
	}
	return Fields(obj)
}

// String renvoie le champ converti en chaîne et sans espaces autour
func (f Fields) String(key string) string {
	v, ok := f[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(Coerce(v))
}

// Text renvoie le champ converti puis tronqué à max caractères
func (f Fields) Text(key string, max int) string {
	return Truncate(f.String(key), max)
}

// Object renvoie le champ s'il s'agit d'un objet JSON, nil sinon
func (f Fields) Object(key string) map[string]any {
	v, ok := f[key].(map[string]any)
	if !ok {
		return nil
	}
	return v
}

// Coerce convertit n'importe quelle valeur JSON décodée en chaîne
func Coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Truncate garde les max premiers caractères (runes) de s
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// ExtractLog prépare un événement de log. Le user-agent du corps est prioritaire
// sur l'en-tête HTTP.
func ExtractLog(f Fields, headerUserAgent string) LogRequest {
	ua := f.String("userAgent")
	if ua == "" {
		ua = strings.TrimSpace(headerUserAgent)
	}
	return LogRequest{
		IPFromClient: f.Text("ipFromClient", MaxFieldLength),
		UserAgent:    Truncate(ua, MaxFieldLength),
		Page:         f.Text("page", MaxFieldLength),
		Note:         f.Text("note", MaxFieldLength),
	}
}

// ExtractClick prépare un clic de paiement. orderId n'est pas validé ici.
func ExtractClick(f Fields) ClickRequest {
	return ClickRequest{
		OrderID:   f.Text("orderId", MaxFieldLength),
		SessionID: f.Text("sessionId", MaxFieldLength),
		Amount:    f.Text("amount", MaxFieldLength),
		Currency:  f.Text("currency", MaxFieldLength),
		Address:   f.Text("address", MaxFieldLength),
		Meta:      f.Object("meta"),
	}
}

// UserAgent tronque l'en-tête User-Agent
func UserAgent(header string) string {
	return Truncate(strings.TrimSpace(header), MaxFieldLength)
}
