package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kavenegar/kavenegar-go"
)

// KavenegarOTPSender sends codes directly through the Kavenegar SMS API. A
// verify template is tried first; if the template is rejected the code goes
// out as a plain message from sender.
type KavenegarOTPSender struct {
	template string
	lookup   func(phone, template, code string) error
	message  func(phone, text string) error
}

func NewKavenegarOTPSender(apiKey, sender, template string) *KavenegarOTPSender {
	api := kavenegar.New(apiKey)
	return &KavenegarOTPSender{
		template: template,
		lookup: func(phone, template, code string) error {
			_, err := api.Verify.Lookup(phone, template, code, &kavenegar.VerifyLookupParam{})
			return err
		},
		message: func(phone, text string) error {
			_, err := api.Message.Send(sender, []string{phone}, text, nil)
			return err
		},
	}
}

func (s *KavenegarOTPSender) Send(_ context.Context, phone, code string) error {
	if phone == "" || code == "" {
		return errors.New("phone and code are required")
	}

	lookupErr := s.lookup(phone, s.template, code)
	if lookupErr == nil {
		return nil
	}
	if err := s.message(phone, fmt.Sprintf("Your verification code is %s", code)); err != nil {
		return fmt.Errorf("kavenegar: %w", errors.Join(lookupErr, describeKavenegarError(err)))
	}
	return nil
}

func describeKavenegarError(err error) error {
	switch e := err.(type) {
	case *kavenegar.APIError:
		return fmt.Errorf("API error: %w", e)
	case *kavenegar.HTTPError:
		return fmt.Errorf("HTTP error: %w", e)
	default:
		return err
	}
}
