package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderSignature = "X-Snapify-Signature"
	HeaderDate      = "X-Snapify-Date"
	HeaderNonce     = "X-Snapify-Nonce"
)

var ErrMissingSignature = errors.New("missing signature headers")

// SignedRequest is the canonical form of a request covered by a device
// signature.
type SignedRequest struct {
	DeviceID string
	Method   string
	Path     string
	Query    string
	Body     []byte
	Date     string
	Nonce    string
}

func (r SignedRequest) payload() string {
	sum := sha256.Sum256(r.Body)
	return strings.Join([]string{
		r.DeviceID,
		strings.ToUpper(r.Method),
		r.Path,
		r.Query,
		base64.RawURLEncoding.EncodeToString(sum[:]),
		r.Date,
		r.Nonce,
	}, "\n")
}

func Sign(secret string, req SignedRequest) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(req.payload()))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret string, req SignedRequest, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(secret, req)))
}

func SignatureHeaders(h http.Header) (date, nonce, signature string, err error) {
	date = h.Get(HeaderDate)
	nonce = h.Get(HeaderNonce)
	signature = h.Get(HeaderSignature)
	if date == "" || nonce == "" || signature == "" {
		return "", "", "", ErrMissingSignature
	}
	return date, nonce, signature, nil
}
