package paysdk

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Headers carrying the signature material.
const (
	HeaderAPIKey    = "X-Api-Key"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderSignature = "X-Signature"
)

// BodyDigest is the lowercase hex SHA-256 of body. An empty body hashes the
// empty string.
func BodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalMessage returns "timestamp.nonce.METHOD.path.bodyDigest".
// The method is upper-cased; the timestamp is unix seconds.
func CanonicalMessage(timestamp int64, nonce, method, path string, body []byte) string {
	return strings.Join([]string{
		strconv.FormatInt(timestamp, 10),
		nonce,
		strings.ToUpper(method),
		path,
		BodyDigest(body),
	}, ".")
}

// Sign returns hex(HMAC-SHA256(secret, canonical)).
func Sign(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// RequestSigner attaches signature headers to outgoing requests.
type RequestSigner struct {
	APIKey string
	Secret string

	// Now and NewNonce are overridable for tests.
	Now      func() time.Time
	NewNonce func() string
}

func NewRequestSigner(apiKey, secret string) *RequestSigner {
	return &RequestSigner{
		APIKey:   apiKey,
		Secret:   secret,
		Now:      time.Now,
		NewNonce: uuid.NewString,
	}
}

// SignRequest reads and restores req.Body, then sets the four signature
// headers. Every call uses a fresh nonce, so a signed request can be sent
// exactly once.
func (s *RequestSigner) SignRequest(req *http.Request) error {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return fmt.Errorf("paysdk: read body: %w", err)
		}
		_ = req.Body.Close()
		body = b
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	ts := s.now().Unix()
	nonce := s.nonce()
	canonical := CanonicalMessage(ts, nonce, req.Method, req.URL.Path, body)

	req.Header.Set(HeaderAPIKey, s.APIKey)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, Sign(s.Secret, canonical))
	return nil
}

func (s *RequestSigner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *RequestSigner) nonce() string {
	if s.NewNonce != nil {
		return s.NewNonce()
	}
	return uuid.NewString()
}
