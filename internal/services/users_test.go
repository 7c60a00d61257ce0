package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*models.KeyUser
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*models.KeyUser{}}
}

func (f *fakeUsers) Create(ctx context.Context, publicKey, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[publicKey]; ok {
		return fmt.Errorf("%w: User already registered with this public key", common.ErrAlreadyExists)
	}
	f.users[publicKey] = &models.KeyUser{PublicKey: publicKey, PrivateKeyHash: hash, RegisteredOn: time.Now()}
	return nil
}

func (f *fakeUsers) GetByPublicKey(ctx context.Context, publicKey string) (*models.KeyUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[publicKey]
	if !ok {
		return nil, fmt.Errorf("%w: User not found", common.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.KeyUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email != nil && strings.EqualFold(*u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: A user does not exist with this email", common.ErrNotFound)
}

func (f *fakeUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := f.GetByEmail(ctx, email)
	return err == nil, nil
}

func (f *fakeUsers) SetVerifiedEmail(ctx context.Context, publicKey, email string) (*models.KeyUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[publicKey]
	if !ok {
		return nil, fmt.Errorf("%w: User not found", common.ErrNotFound)
	}
	u.Email = &email
	u.EmailVerified = true
	cp := *u
	return &cp, nil
}

type sentMail struct {
	to, subject, body string
}

type captureMailer struct {
	sent chan sentMail
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{sent: make(chan sentMail, 8)}
}

func (m *captureMailer) Send(ctx context.Context, to, subject, body string) error {
	m.sent <- sentMail{to, subject, body}
	return nil
}

func (m *captureMailer) next(t *testing.T) sentMail {
	t.Helper()
	select {
	case msg := <-m.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no mail sent")
		return sentMail{}
	}
}

var codeInBody = regexp.MustCompile(`code is (\d+)`)

func newUserService(t *testing.T) (*UserService, *fakeUsers, *captureMailer) {
	_, client := newRedis(t)
	users := newFakeUsers()
	mailer := newCaptureMailer()
	otp := NewOTPStore(client, 10*time.Minute, 5, nil)
	return NewUserService(users, otp, mailer, discardLogger(), 10*time.Minute), users, mailer
}

func TestUserService_RegisterAndLogin(t *testing.T) {
	svc, users, _ := newUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "pkA", "client-hash"))
	assert.NotEqual(t, "client-hash", users.users["pkA"].PrivateKeyHash)

	u, err := svc.Login(ctx, "pkA", "client-hash")
	require.NoError(t, err)
	assert.Equal(t, "pkA", u.PublicKey)

	_, err = svc.Login(ctx, "pkA", "wrong")
	require.ErrorIs(t, err, common.ErrVerificationFailed)

	_, err = svc.Login(ctx, "ghost", "client-hash")
	require.ErrorIs(t, err, common.ErrVerificationFailed)

	err = svc.Register(ctx, "pkA", "other")
	require.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestUserService_RegisterValidation(t *testing.T) {
	svc, _, _ := newUserService(t)
	err := svc.Register(context.Background(), " ", "hash")
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, "publicKey is required", common.Message(err))
}

func TestUserService_RegistrationOTPFlow(t *testing.T) {
	svc, _, mailer := newUserService(t)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "pkA", "h"))

	sessionID, err := svc.SendRegistrationOTP(ctx, "User@Example.com")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	mail := mailer.next(t)
	assert.Equal(t, "user@example.com", mail.to)
	m := codeInBody.FindStringSubmatch(mail.body)
	require.Len(t, m, 2)

	u, err := svc.VerifyRegistrationOTP(ctx, m[1], sessionID, "user@example.com", "pkA")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
	require.NotNil(t, u.Email)
	assert.Equal(t, "user@example.com", *u.Email)

	_, err = svc.VerifyRegistrationOTP(ctx, m[1], sessionID, "user@example.com", "pkA")
	require.ErrorIs(t, err, common.ErrVerificationFailed)

	_, err = svc.SendRegistrationOTP(ctx, "user@example.com")
	require.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestUserService_RegistrationOTPUnknownKey(t *testing.T) {
	svc, _, _ := newUserService(t)
	_, err := svc.VerifyRegistrationOTP(context.Background(), "123", "sess", "user@example.com", "ghost")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestUserService_RecoveryOTPFlow(t *testing.T) {
	svc, _, mailer := newUserService(t)
	ctx := context.Background()

	_, err := svc.SendRecoveryOTP(ctx, "user@example.com")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, svc.Register(ctx, "pkA", "h"))
	regSession, err := svc.SendRegistrationOTP(ctx, "user@example.com")
	require.NoError(t, err)
	regCode := codeInBody.FindStringSubmatch(mailer.next(t).body)[1]
	_, err = svc.VerifyRegistrationOTP(ctx, regCode, regSession, "user@example.com", "pkA")
	require.NoError(t, err)

	sessionID, err := svc.SendRecoveryOTP(ctx, "user@example.com")
	require.NoError(t, err)
	code := codeInBody.FindStringSubmatch(mailer.next(t).body)[1]

	u, err := svc.VerifyRecoveryOTP(ctx, code, sessionID, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "pkA", u.PublicKey)
}

func TestUserService_RecoveryOTPPaddedEmail(t *testing.T) {
	svc, _, mailer := newUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "pkA", "h"))
	regSession, err := svc.SendRegistrationOTP(ctx, "user@example.com")
	require.NoError(t, err)
	regCode := codeInBody.FindStringSubmatch(mailer.next(t).body)[1]
	_, err = svc.VerifyRegistrationOTP(ctx, regCode, regSession, "user@example.com", "pkA")
	require.NoError(t, err)

	sessionID, err := svc.SendRecoveryOTP(ctx, " user@example.com ")
	require.NoError(t, err)
	code := codeInBody.FindStringSubmatch(mailer.next(t).body)[1]

	u, err := svc.VerifyRecoveryOTP(ctx, code, sessionID, " user@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "pkA", u.PublicKey)
}

func TestUserService_RegistrationCodeRejectedForRecovery(t *testing.T) {
	svc, _, mailer := newUserService(t)
	ctx := context.Background()

	sessionID, err := svc.SendRegistrationOTP(ctx, "new@example.com")
	require.NoError(t, err)
	code := codeInBody.FindStringSubmatch(mailer.next(t).body)[1]

	_, err = svc.VerifyRecoveryOTP(ctx, code, sessionID, "new@example.com")
	require.ErrorIs(t, err, common.ErrVerificationFailed)
}

func TestUserService_SendOTPValidatesEmail(t *testing.T) {
	svc, _, _ := newUserService(t)
	_, err := svc.SendRegistrationOTP(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestLogMailer_DoesNotLogBody(t *testing.T) {
	var buf strings.Builder
	m := &LogMailer{From: "no-reply@example.com", Log: slogTo(&buf)}
	require.NoError(t, m.Send(context.Background(), "jane@example.com", "Your verification code", "Your verification code is 424242."))
	assert.NotContains(t, buf.String(), "424242")
	assert.NotContains(t, buf.String(), "jane@")
	assert.Contains(t, buf.String(), "j***@example.com")
}
