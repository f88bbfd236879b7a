package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"civicreport-be/logger"
	"civicreport-be/models"
	"civicreport-be/repositories"
	authUtils "civicreport-be/utils"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidOTP         = errors.New("invalid or expired code")
	ErrTooManyAttempts    = errors.New("too many attempts, request a new code")
	ErrInvalidToken       = errors.New("invalid authorization token")
	ErrSessionRevoked     = errors.New("session has been signed out")
)

// OTPSender delivers one-time codes to a phone.
type OTPSender interface {
	Send(ctx context.Context, phone, code string) error
}

// KafkaOTPSender hands codes to the SMS gateway through a Kafka topic.
type KafkaOTPSender struct {
	writer KafkaWriter
	topic  string
}

func NewKafkaOTPSender(writer KafkaWriter, topic string) *KafkaOTPSender {
	return &KafkaOTPSender{writer: writer, topic: topic}
}

func (s *KafkaOTPSender) Send(ctx context.Context, phone, code string) error {
	value, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": fmt.Sprintf("Your verification code is %s", code),
	})
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Topic: s.topic, Key: []byte(phone), Value: value})
}

// LogOTPSender writes codes to the debug log. Development only.
type LogOTPSender struct {
	log *logger.Logger
}

func NewLogOTPSender(log *logger.Logger) *LogOTPSender {
	return &LogOTPSender{log: log}
}

func (s *LogOTPSender) Send(_ context.Context, phone, code string) error {
	s.log.Service().WithField("phone", phone).WithField("code", code).Debug("otp issued")
	return nil
}

type AuthConfig struct {
	Secret         string
	TokenTTL       time.Duration
	OTPTTL         time.Duration
	MaxOTPAttempts int
}

// Session is a signed-in identity.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Profile   *models.Profile `json:"profile"`
}

type AuthService struct {
	profiles repositories.ProfileRepository
	rdb      *redis.Client
	sender   OTPSender
	cfg      AuthConfig
	now      func() time.Time
}

func NewAuthService(profiles repositories.ProfileRepository, rdb *redis.Client, sender OTPSender, cfg AuthConfig) *AuthService {
	if cfg.MaxOTPAttempts <= 0 {
		cfg.MaxOTPAttempts = 5
	}
	return &AuthService{profiles: profiles, rdb: rdb, sender: sender, cfg: cfg, now: time.Now}
}

func (s *AuthService) newSession(p *models.Profile) (*Session, error) {
	token, claims, err := authUtils.GenerateToken(s.cfg.Secret, p.ID.Hex(), string(p.Role), s.cfg.TokenTTL, s.now())
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: time.Unix(claims.ExpiresAt, 0), Profile: p}, nil
}

// RegisterInput creates a citizen account with a password.
type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || len(in.Password) < 6 {
		return nil, fmt.Errorf("%w: email and a password of at least 6 characters are required", ErrInvalidInput)
	}

	if _, err := s.profiles.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	p := &models.Profile{
		Email:                   email,
		FullName:                strings.TrimSpace(in.FullName),
		Password:                in.Password,
		Role:                    models.Citizen,
		NotificationPreferences: models.NotificationPreferences{PushEnabled: true},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := p.HashPassword(); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.profiles.Insert(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return p, nil
}

// SignInWithPassword accepts an email address or a phone number as identifier.
func (s *AuthService) SignInWithPassword(ctx context.Context, identifier, secret string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)

	var (
		p   *models.Profile
		err error
	)
	if strings.Contains(identifier, "@") {
		p, err = s.profiles.FindByEmail(ctx, strings.ToLower(identifier))
	} else {
		phone, perr := NormalizePhone(identifier)
		if perr != nil {
			return nil, ErrInvalidCredentials
		}
		p, err = s.profiles.FindByPhone(ctx, phone)
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !p.ComparePassword(secret) {
		return nil, ErrInvalidCredentials
	}
	return s.newSession(p)
}

// NormalizePhone turns user input into E.164. Ten bare digits are read as a
// North American number.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case strings.HasPrefix(raw, "+") && len(d) >= 8 && len(d) <= 15:
		return "+" + d, nil
	case len(d) == 10:
		return "+1" + d, nil
	case len(d) == 11 && d[0] == '1':
		return "+" + d, nil
	}
	return "", ErrInvalidPhone
}

func otpKey(phone string) string      { return "otp:code:" + phone }
func attemptsKey(phone string) string { return "otp:attempts:" + phone }
func revokedKey(jti string) string    { return "session:revoked:" + jti }

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SignInWithOTP sends a fresh six digit code, replacing any earlier one.
func (s *AuthService) SignInWithOTP(ctx context.Context, phone string) error {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, otpKey(phone), hash, s.cfg.OTPTTL)
		pipe.Del(ctx, attemptsKey(phone))
		return nil
	})
	if err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	return s.sender.Send(ctx, phone, code)
}

// VerifyOTP checks the code and signs the phone's owner in, creating a verified
// citizen profile on first use.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, code string) (*Session, error) {
	phone, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	hash, err := s.rdb.Get(ctx, otpKey(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidOTP
	}
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}

	var incr *redis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, attemptsKey(phone))
		pipe.ExpireNX(ctx, attemptsKey(phone), s.cfg.OTPTTL)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if incr.Val() > int64(s.cfg.MaxOTPAttempts) {
		if err := s.rdb.Del(ctx, otpKey(phone), attemptsKey(phone)).Err(); err != nil {
			return nil, fmt.Errorf("discard code: %w", err)
		}
		return nil, ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(strings.TrimSpace(code))) != nil {
		return nil, ErrInvalidOTP
	}
	if err := s.rdb.Del(ctx, otpKey(phone), attemptsKey(phone)).Err(); err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}

	p, err := s.findOrCreateByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	return s.newSession(p)
}

func (s *AuthService) findOrCreateByPhone(ctx context.Context, phone string) (*models.Profile, error) {
	p, err := s.profiles.FindByPhone(ctx, phone)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	now := s.now()
	p = &models.Profile{
		Phone:                   phone,
		Role:                    models.Citizen,
		IsVerified:              true,
		NotificationPreferences: models.NotificationPreferences{PushEnabled: true},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.profiles.Insert(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return s.profiles.FindByPhone(ctx, phone)
		}
		return nil, err
	}
	return p, nil
}

// Authenticate resolves a bearer token to its claims and current profile.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*authUtils.Claims, *models.Profile, error) {
	claims, err := authUtils.ParseToken(s.cfg.Secret, token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	revoked, err := s.rdb.Exists(ctx, revokedKey(claims.Id)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked > 0 {
		return nil, nil, ErrSessionRevoked
	}

	p, err := s.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return claims, p, nil
}

// GetUser loads the profile behind a token subject.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.Profile, error) {
	id, err := parseObjectID(userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	p, err := s.profiles.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	return p, err
}

// SignOut revokes the token until it would have expired anyway.
func (s *AuthService) SignOut(ctx context.Context, claims *authUtils.Claims) error {
	ttl := time.Unix(claims.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedKey(claims.Id), 1, ttl).Err()
}
