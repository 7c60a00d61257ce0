package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
	"github.com/vevsa/books-auth/pkg/utils"
)

type userStore interface {
	Create(ctx context.Context, publicKey, privateKeyHash string) error
	GetByPublicKey(ctx context.Context, publicKey string) (*models.KeyUser, error)
	GetByEmail(ctx context.Context, email string) (*models.KeyUser, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	SetVerifiedEmail(ctx context.Context, publicKey, email string) (*models.KeyUser, error)
}

type otpStore interface {
	Issue(ctx context.Context, email string, purpose models.OTPPurpose) (models.OTPChallenge, error)
	Verify(ctx context.Context, code, sessionID, email string, purpose models.OTPPurpose) (bool, error)
}

// UserService manages key user identities and their email verification.
type UserService struct {
	users       userStore
	otp         otpStore
	mailer      Mailer
	log         *slog.Logger
	mailTimeout time.Duration
	otpTTL      time.Duration
}

func NewUserService(users userStore, otp otpStore, mailer Mailer, log *slog.Logger, otpTTL time.Duration) *UserService {
	return &UserService{
		users:       users,
		otp:         otp,
		mailer:      mailer,
		log:         log,
		mailTimeout: 10 * time.Second,
		otpTTL:      otpTTL,
	}
}

func validationFrom(err error) error {
	if err == nil {
		return nil
	}
	return common.Validation(err.Error())
}

// Register creates an identity. The private key hash supplied by the client
// is stored as an argon2id digest.
func (s *UserService) Register(ctx context.Context, publicKey, privateKeyHash string) error {
	if err := utils.RequireKey("publicKey", publicKey); err != nil {
		return validationFrom(err)
	}
	if err := utils.RequireKey("privateKeyHash", privateKeyHash); err != nil {
		return validationFrom(err)
	}

	digest, err := utils.HashSecret(privateKeyHash)
	if err != nil {
		return fmt.Errorf("%w: hash private key: %v", common.ErrStorage, err)
	}
	if err := s.users.Create(ctx, publicKey, digest); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "key user registered", "public_key", publicKey)
	return nil
}

var errBadCredentials = fmt.Errorf("%w: Invalid public key or private key hash", common.ErrVerificationFailed)

func (s *UserService) Login(ctx context.Context, publicKey, privateKeyHash string) (*models.KeyUser, error) {
	if err := utils.RequireKey("publicKey", publicKey); err != nil {
		return nil, validationFrom(err)
	}
	if err := utils.RequireKey("privateKeyHash", privateKeyHash); err != nil {
		return nil, validationFrom(err)
	}

	u, err := s.users.GetByPublicKey(ctx, publicKey)
	if errors.Is(err, common.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := utils.VerifySecret(privateKeyHash, u.PrivateKeyHash)
	if err != nil {
		s.log.ErrorContext(ctx, "stored key hash is unreadable", "public_key", publicKey, "error", err)
		return nil, errBadCredentials
	}
	if !ok {
		return nil, errBadCredentials
	}
	return u, nil
}

func (s *UserService) Search(ctx context.Context, publicKey string) (*models.KeyUser, error) {
	if err := utils.RequireKey("publicKey", publicKey); err != nil {
		return nil, validationFrom(err)
	}
	return s.users.GetByPublicKey(ctx, publicKey)
}

// SendRegistrationOTP issues a registration challenge for an email no user
// owns yet and mails the code. Only the session id is returned.
func (s *UserService) SendRegistrationOTP(ctx context.Context, email string) (string, error) {
	if err := utils.ValidateEmail(email); err != nil {
		return "", validationFrom(err)
	}
	email = utils.NormalizeEmail(email)

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: A user already exists with this email", common.ErrAlreadyExists)
	}
	return s.issue(ctx, email, models.OTPPurposeRegistration)
}

// SendRecoveryOTP issues a recovery challenge for an email that belongs to
// an existing user.
func (s *UserService) SendRecoveryOTP(ctx context.Context, email string) (string, error) {
	if err := utils.ValidateEmail(email); err != nil {
		return "", validationFrom(err)
	}
	email = utils.NormalizeEmail(email)

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: A user does not exist with this email", common.ErrNotFound)
	}
	return s.issue(ctx, email, models.OTPPurposeRecovery)
}

func (s *UserService) issue(ctx context.Context, email string, purpose models.OTPPurpose) (string, error) {
	ch, err := s.otp.Issue(ctx, email, purpose)
	if err != nil {
		return "", err
	}
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", ch.Code, int(s.otpTTL.Minutes()))
	sendAsync(s.log, s.mailer, s.mailTimeout, email, "Your verification code", body)
	s.log.InfoContext(ctx, "otp issued", "purpose", purpose, "session_id", ch.SessionID)
	return ch.SessionID, nil
}

func (s *UserService) verify(ctx context.Context, code, sessionID, email string, purpose models.OTPPurpose) error {
	if err := utils.ValidateEmail(email); err != nil {
		return validationFrom(err)
	}
	if err := utils.RequireKey("sessionId", sessionID); err != nil {
		return validationFrom(err)
	}
	normalized, err := NormalizeOTP(code)
	if err != nil {
		return err
	}
	ok, err := s.otp.Verify(ctx, normalized, sessionID, utils.NormalizeEmail(email), purpose)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: Invalid OTP", common.ErrVerificationFailed)
	}
	return nil
}

// VerifyRegistrationOTP checks the challenge and attaches the verified email
// to publicKey.
func (s *UserService) VerifyRegistrationOTP(ctx context.Context, code, sessionID, email, publicKey string) (*models.KeyUser, error) {
	if err := utils.RequireKey("publicKey", publicKey); err != nil {
		return nil, validationFrom(err)
	}
	if _, err := s.users.GetByPublicKey(ctx, publicKey); err != nil {
		return nil, err
	}
	if err := s.verify(ctx, code, sessionID, email, models.OTPPurposeRegistration); err != nil {
		return nil, err
	}
	return s.users.SetVerifiedEmail(ctx, publicKey, utils.NormalizeEmail(email))
}

// VerifyRecoveryOTP checks the challenge and returns the identity owning email.
func (s *UserService) VerifyRecoveryOTP(ctx context.Context, code, sessionID, email string) (*models.KeyUser, error) {
	if err := s.verify(ctx, code, sessionID, email, models.OTPPurposeRecovery); err != nil {
		return nil, err
	}
	return s.users.GetByEmail(ctx, utils.NormalizeEmail(email))
}
