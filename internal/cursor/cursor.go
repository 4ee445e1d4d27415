// Package cursor implements the opaque continuation token used to resume
// paginated event listings. A token carries the id of the last item the
// client saw and an echo of the filters that were in effect, so the server
// can detect filter drift between pages.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ErrMalformedToken is returned for any token that did not come out of
// Encode. Callers must treat it as a client error; a bad token never means
// "resume from the start".
var ErrMalformedToken = errors.New("malformed continuation token")

// Token is the decoded form of a continuation token.
type Token struct {
	ResumeID int64             `json:"r"`
	Filters  map[string]string `json:"f,omitempty"`
}

// Encode serializes a resume position plus filter echo into an opaque,
// URL-safe string. Clients round-trip it verbatim.
func Encode(resumeID int64, filters map[string]string) string {
	b, _ := json.Marshal(Token{ResumeID: resumeID, Filters: filters})
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode reverses Encode. Any failure, of the base64 layer, the JSON layer,
// or a missing resume position, yields ErrMalformedToken.
func Decode(s string) (Token, error) {
	if s == "" {
		return Token{}, ErrMalformedToken
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Token{}, ErrMalformedToken
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return Token{}, ErrMalformedToken
	}
	if t.ResumeID <= 0 {
		return Token{}, ErrMalformedToken
	}
	return t, nil
}
