package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"civicreport-be/mocks"
	"civicreport-be/models"
	"civicreport-be/services"
	"civicreport-be/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type authFixture struct {
	store  *testutil.Store
	mr     *miniredis.Miniredis
	sender *mocks.MockOTPSender
	svc    *services.AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &authFixture{
		store:  testutil.NewStore(),
		mr:     mr,
		sender: mocks.NewMockOTPSender(ctrl),
	}
	f.svc = services.NewAuthService(f.store.Profiles(), rdb, f.sender, services.AuthConfig{
		Secret:         "test-secret",
		TokenTTL:       time.Hour,
		OTPTTL:         5 * time.Minute,
		MaxOTPAttempts: 3,
	})
	return f
}

// expectCode captures the code handed to the sender for phone.
func (f *authFixture) expectCode(phone string) *string {
	var code string
	f.sender.EXPECT().Send(gomock.Any(), phone, gomock.Any()).DoAndReturn(func(_ context.Context, _ string, c string) error {
		code = c
		return nil
	})
	return &code
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"(555) 123-4567", "+15551234567", true},
		{"1-555-123-4567", "+15551234567", true},
		{"+44 20 7946 0958", "+442079460958", true},
		{"+1234567", "", false},
		{"12345", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := services.NormalizePhone(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, services.ErrInvalidPhone, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestAuthServicePassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	p, err := f.svc.Register(ctx, services.RegisterInput{FullName: "Alex Kim", Email: " Alex@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alex@example.com", p.Email)
	assert.Equal(t, models.Citizen, p.Role)
	assert.NotEqual(t, "secret1", p.Password)
	assert.True(t, p.NotificationPreferences.PushEnabled)

	t.Run("DuplicateEmail", func(t *testing.T) {
		_, err := f.svc.Register(ctx, services.RegisterInput{Email: "alex@example.com", Password: "another"})
		assert.ErrorIs(t, err, services.ErrEmailTaken)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		_, err := f.svc.Register(ctx, services.RegisterInput{Email: "new@example.com", Password: "123"})
		assert.ErrorIs(t, err, services.ErrInvalidInput)
	})

	t.Run("SignIn", func(t *testing.T) {
		session, err := f.svc.SignInWithPassword(ctx, "ALEX@example.com", "secret1")
		require.NoError(t, err)
		assert.NotEmpty(t, session.Token)
		assert.Equal(t, p.ID, session.Profile.ID)

		claims, profile, err := f.svc.Authenticate(ctx, session.Token)
		require.NoError(t, err)
		assert.Equal(t, p.ID.Hex(), claims.UserID)
		assert.Equal(t, "citizen", claims.Role)
		assert.Equal(t, p.ID, profile.ID)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := f.svc.SignInWithPassword(ctx, "alex@example.com", "nope")
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := f.svc.SignInWithPassword(ctx, "ghost@example.com", "secret1")
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
		_, err = f.svc.SignInWithPassword(ctx, "not a phone", "secret1")
		assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	})
}

func TestAuthServiceOTP(t *testing.T) {
	ctx := context.Background()
	const phone = "+15551234567"

	t.Run("VerifyCreatesVerifiedCitizen", func(t *testing.T) {
		f := newAuthFixture(t)
		code := f.expectCode(phone)

		require.NoError(t, f.svc.SignInWithOTP(ctx, "555-123-4567"))
		require.Len(t, *code, 6)
		assert.True(t, f.mr.Exists("otp:code:"+phone))

		session, err := f.svc.VerifyOTP(ctx, "5551234567", *code)
		require.NoError(t, err)
		assert.Equal(t, phone, session.Profile.Phone)
		assert.True(t, session.Profile.IsVerified)
		assert.Equal(t, models.Citizen, session.Profile.Role)
		assert.False(t, f.mr.Exists("otp:code:"+phone))

		_, err = f.svc.VerifyOTP(ctx, phone, *code)
		assert.ErrorIs(t, err, services.ErrInvalidOTP)
	})

	t.Run("SecondSignInReusesProfile", func(t *testing.T) {
		f := newAuthFixture(t)
		code := f.expectCode(phone)
		require.NoError(t, f.svc.SignInWithOTP(ctx, phone))
		first, err := f.svc.VerifyOTP(ctx, phone, *code)
		require.NoError(t, err)

		code = f.expectCode(phone)
		require.NoError(t, f.svc.SignInWithOTP(ctx, phone))
		second, err := f.svc.VerifyOTP(ctx, phone, *code)
		require.NoError(t, err)
		assert.Equal(t, first.Profile.ID, second.Profile.ID)
	})

	t.Run("WrongCode", func(t *testing.T) {
		f := newAuthFixture(t)
		code := f.expectCode(phone)
		require.NoError(t, f.svc.SignInWithOTP(ctx, phone))

		wrong := "000000"
		if *code == wrong {
			wrong = "111111"
		}
		_, err := f.svc.VerifyOTP(ctx, phone, wrong)
		assert.ErrorIs(t, err, services.ErrInvalidOTP)

		_, err = f.svc.VerifyOTP(ctx, phone, *code)
		assert.NoError(t, err)
	})

	t.Run("AttemptsExhausted", func(t *testing.T) {
		f := newAuthFixture(t)
		code := f.expectCode(phone)
		require.NoError(t, f.svc.SignInWithOTP(ctx, phone))

		wrong := "000000"
		if *code == wrong {
			wrong = "111111"
		}
		for i := 0; i < 3; i++ {
			_, err := f.svc.VerifyOTP(ctx, phone, wrong)
			assert.ErrorIs(t, err, services.ErrInvalidOTP)
		}
		_, err := f.svc.VerifyOTP(ctx, phone, *code)
		assert.ErrorIs(t, err, services.ErrTooManyAttempts)
		assert.False(t, f.mr.Exists("otp:code:"+phone))
	})

	t.Run("AttemptsCounterExpiresWithCode", func(t *testing.T) {
		f := newAuthFixture(t)
		code := f.expectCode(phone)
		require.NoError(t, f.svc.SignInWithOTP(ctx, phone))

		wrong := "000000"
		if *code == wrong {
			wrong = "111111"
		}
		_, err := f.svc.VerifyOTP(ctx, phone, wrong)
		require.ErrorIs(t, err, services.ErrInvalidOTP)
		assert.Equal(t, 5*time.Minute, f.mr.TTL("otp:attempts:"+phone))

		f.mr.FastForward(2 * time.Minute)
		_, err = f.svc.VerifyOTP(ctx, phone, wrong)
		require.ErrorIs(t, err, services.ErrInvalidOTP)
		assert.Equal(t, 3*time.Minute, f.mr.TTL("otp:attempts:"+phone))
	})

	t.Run("ExpiredCode", func(t *testing.T) {
		f := newAuthFixture(t)
		code := f.expectCode(phone)
		require.NoError(t, f.svc.SignInWithOTP(ctx, phone))

		f.mr.FastForward(6 * time.Minute)
		_, err := f.svc.VerifyOTP(ctx, phone, *code)
		assert.ErrorIs(t, err, services.ErrInvalidOTP)
	})

	t.Run("InvalidPhone", func(t *testing.T) {
		f := newAuthFixture(t)
		assert.ErrorIs(t, f.svc.SignInWithOTP(ctx, "123"), services.ErrInvalidPhone)
	})
}

func TestAuthServiceSignOut(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, err := f.svc.Register(ctx, services.RegisterInput{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	session, err := f.svc.SignInWithPassword(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	claims, _, err := f.svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, claims))
	assert.True(t, f.mr.Exists("session:revoked:"+claims.Id))

	_, _, err = f.svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, services.ErrSessionRevoked)

	other, err := f.svc.SignInWithPassword(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, _, err = f.svc.Authenticate(ctx, other.Token)
	assert.NoError(t, err)

	_, _, err = f.svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

type captureWriter struct {
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaOTPSender(t *testing.T) {
	w := &captureWriter{}
	require.NoError(t, services.NewKafkaOTPSender(w, "sms-otp").Send(context.Background(), "+15551234567", "123456"))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "sms-otp", w.msgs[0].Topic)
	assert.Equal(t, "+15551234567", string(w.msgs[0].Key))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, "+15551234567", body["phone"])
	assert.Contains(t, body["message"], "123456")
}
