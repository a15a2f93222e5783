// Package tc3 implements Tencent Cloud API v3 request signing
// (TC3-HMAC-SHA256) for JSON POST requests.
package tc3

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	Algorithm     = "TC3-HMAC-SHA256"
	ContentType   = "application/json; charset=utf-8"
	SignedHeaders = "content-type;host"

	keyPrefix   = "TC3"
	requestType = "tc3_request"
)

// Credential is the secret pair used to sign a request. It is passed by value
// per request and must never be written to logs.
type Credential struct {
	SecretID  string
	SecretKey string
}

// Valid reports whether both halves of the pair are present.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.SecretID) != "" && strings.TrimSpace(c.SecretKey) != ""
}

// String redacts the secret key.
func (c Credential) String() string {
	return "tc3.Credential{SecretID:" + c.SecretID + ", SecretKey:***}"
}

// MarshalZerologObject keeps the secret key out of structured logs.
func (c Credential) MarshalZerologObject(e *zerolog.Event) {
	e.Str("secret_id", c.SecretID)
}

// Service is the fixed identity of a Tencent Cloud product endpoint.
type Service struct {
	Host    string
	Name    string
	Region  string
	Version string
}

// Signer produces signed header sets for a single Service.
type Signer struct {
	service Service
	now     func() time.Time
}

// NewSigner returns a signer for service. now defaults to time.Now.
func NewSigner(service Service, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{service: service, now: now}
}

// Service returns the identity the signer was built for.
func (s *Signer) Service() Service {
	return s.service
}

// Headers signs payload for action and returns the complete header set for
// the POST request.
func (s *Signer) Headers(cred Credential, action string, payload []byte) http.Header {
	timestamp := s.now().Unix()
	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")

	canonical := canonicalRequest(
		[]string{"content-type:" + ContentType, "host:" + s.service.Host},
		SignedHeaders,
		sha256Hex(payload),
	)
	scope := credentialScope(date, s.service.Name)
	toSign := stringToSign(timestamp, scope, sha256Hex([]byte(canonical)))
	signature := Sign(cred.SecretKey, date, s.service.Name, toSign)

	header := http.Header{}
	header.Set("Authorization", Authorization(cred.SecretID, scope, signature))
	header.Set("Content-Type", ContentType)
	header.Set("Host", s.service.Host)
	header.Set("X-TC-Action", action)
	header.Set("X-TC-Timestamp", strconv.FormatInt(timestamp, 10))
	header.Set("X-TC-Version", s.service.Version)
	header.Set("X-TC-Region", s.service.Region)
	return header
}

// Sign derives the signing key from secretKey, date and service and returns
// the hex signature of stringToSign.
func Sign(secretKey, date, service, stringToSign string) string {
	kDate := hmacSHA256([]byte(keyPrefix+secretKey), date)
	kService := hmacSHA256(kDate, service)
	kSigning := hmacSHA256(kService, requestType)
	return hex.EncodeToString(hmacSHA256(kSigning, stringToSign))
}

// Authorization formats the Authorization header value.
func Authorization(secretID, scope, signature string) string {
	return Algorithm +
		" Credential=" + secretID + "/" + scope +
		", SignedHeaders=" + SignedHeaders +
		", Signature=" + signature
}

// canonicalRequest joins method, path, empty query, header lines, the signed
// header list and the payload hash. Order is verified by the remote.
func canonicalRequest(headerLines []string, signedHeaders, payloadHash string) string {
	parts := []string{http.MethodPost, "/", ""}
	parts = append(parts, headerLines...)
	parts = append(parts, "", signedHeaders, payloadHash)
	return strings.Join(parts, "\n")
}

func credentialScope(date, service string) string {
	return date + "/" + service + "/" + requestType
}

func stringToSign(timestamp int64, scope, hashedCanonical string) string {
	return strings.Join([]string{
		Algorithm,
		strconv.FormatInt(timestamp, 10),
		scope,
		hashedCanonical,
	}, "\n")
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
