package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/metrics"
	"github.com/vevsa/books-auth/internal/models"
)

const (
	OTPKeyPrefix = "otp:"
	// otpUpper is the largest code handed out; codes start at 1.
	otpUpper = 1_000_000
)

// verifyScript consumes a challenge on a full match. On a mismatch it counts
// the attempt and burns the challenge once ARGV[4] attempts were made.
// Returns 1 on match, 0 on mismatch, -1 when no challenge exists.
var verifyScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
  return -1
end
local f = redis.call('HMGET', key, 'code', 'email', 'purpose')
if f[1] == ARGV[1] and f[2] == ARGV[2] and f[3] == ARGV[3] then
  redis.call('DEL', key)
  return 1
end
local attempts = redis.call('HINCRBY', key, 'attempts', 1)
if attempts >= tonumber(ARGV[4]) then
  redis.call('DEL', key)
end
return 0
`)

// OTPStore keeps single-use numeric challenges in Redis hashes keyed by
// session id.
type OTPStore struct {
	client      redis.Cmdable
	ttl         time.Duration
	maxAttempts int
	metrics     *metrics.Metrics
}

func NewOTPStore(client redis.Cmdable, ttl time.Duration, maxAttempts int, m *metrics.Metrics) *OTPStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &OTPStore{client: client, ttl: ttl, maxAttempts: maxAttempts, metrics: m}
}

func otpKey(sessionID string) string {
	return OTPKeyPrefix + sessionID
}

func newOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpUpper))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+1, 10), nil
}

// NormalizeOTP parses a submitted code so "0042" and "42" compare equal.
func NormalizeOTP(code string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n < 1 || n > otpUpper {
		return "", common.Validation("Invalid OTP format")
	}
	return strconv.Itoa(n), nil
}

// Issue stores a fresh challenge for email and returns it. The caller is
// responsible for delivering the code out of band.
func (s *OTPStore) Issue(ctx context.Context, email string, purpose models.OTPPurpose) (models.OTPChallenge, error) {
	code, err := newOTPCode()
	if err != nil {
		return models.OTPChallenge{}, fmt.Errorf("%w: generate otp: %v", common.ErrStorage, err)
	}
	ch := models.OTPChallenge{
		SessionID: uuid.NewString(),
		Code:      code,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Purpose:   purpose,
		IssuedAt:  time.Now().UTC(),
	}

	key := otpKey(ch.SessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"code", ch.Code,
			"email", ch.Email,
			"purpose", string(ch.Purpose),
			"attempts", 0,
			"issued_at", ch.IssuedAt.Unix(),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return models.OTPChallenge{}, common.StorageErr(ctx, "store otp", err)
	}

	s.metrics.OTPIssued.WithLabelValues(string(purpose)).Inc()
	return ch, nil
}

// Verify reports whether code matches the challenge for sessionID issued to
// email for purpose. A successful verification consumes the challenge.
func (s *OTPStore) Verify(ctx context.Context, code, sessionID, email string, purpose models.OTPPurpose) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}
	res, err := verifyScript.Run(ctx, s.client, []string{otpKey(sessionID)},
		code, strings.ToLower(strings.TrimSpace(email)), string(purpose), s.maxAttempts).Int()
	if err != nil {
		return false, common.StorageErr(ctx, "verify otp", err)
	}

	outcome := "mismatch"
	switch res {
	case 1:
		outcome = "success"
	case -1:
		outcome = "missing"
	}
	s.metrics.OTPVerifications.WithLabelValues(string(purpose), outcome).Inc()
	return res == 1, nil
}
