package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// =====================================================
// WEBHOOK SIGNATURE
// =====================================================

// Header format: "t=<unix seconds>,v1=<hex hmac>[,v1=<hex hmac>]".
// The signed string is "<t>.<raw body>"; several v1 entries appear while
// the gateway rotates secrets.

// DefaultTolerance bounds the age of a signed timestamp
const DefaultTolerance = 5 * time.Minute

// Sign computes the v1 signature for payload at timestamp
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader builds a header value the way the gateway sends it
func SignatureHeader(secret string, timestamp int64, payload []byte) string {
	return "t=" + strconv.FormatInt(timestamp, 10) + ",v1=" + Sign(secret, timestamp, payload)
}

// Verifier checks webhook signatures
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify reports whether header carries a valid, fresh signature of payload
func (v *Verifier) Verify(payload []byte, header string) bool {
	if v.secret == "" || header == "" {
		return false
	}

	timestamp, signatures := parseHeader(header)
	if timestamp == 0 || len(signatures) == 0 {
		return false
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return false
	}

	expected := []byte(Sign(v.secret, timestamp, payload))
	for _, sig := range signatures {
		if hmac.Equal(expected, []byte(strings.ToLower(sig))) {
			return true
		}
	}
	return false
}

func parseHeader(header string) (int64, []string) {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}
	return timestamp, signatures
}
