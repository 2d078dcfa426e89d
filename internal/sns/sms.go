// Package sns sends SMS alerts to donors through Amazon SNS direct publish.
package sns

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ErrInvalidPhone is returned for numbers that cannot be normalized to E.164.
var ErrInvalidPhone = errors.New("invalid phone number")

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

type Config struct {
	Region string
	// CountryCode replaces a leading trunk 0 in locally formatted numbers, e.g. "+254".
	CountryCode string
	SenderID    string
}

type publishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SMSSender struct {
	client      publishAPI
	countryCode string
	senderID    string
}

func NewSMSSender(ctx context.Context, cfg Config) (*SMSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSMSSender(sns.NewFromConfig(awsCfg), cfg), nil
}

func newSMSSender(client publishAPI, cfg Config) *SMSSender {
	return &SMSSender{
		client:      client,
		countryCode: cfg.CountryCode,
		senderID:    cfg.SenderID,
	}
}

func (s *SMSSender) Name() string { return "sms" }

// Send publishes a transactional SMS to phone.
func (s *SMSSender) Send(ctx context.Context, phone, message string) error {
	to, err := NormalizePhone(phone, s.countryCode)
	if err != nil {
		return err
	}

	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("failed to publish sms: %w", err)
	}
	return nil
}

// NormalizePhone strips separators and converts a trunk-prefixed local number
// to E.164 using countryCode.
func NormalizePhone(phone, countryCode string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	if strings.HasPrefix(p, "0") && countryCode != "" {
		p = countryCode + strings.TrimPrefix(p, "0")
	}
	if !e164.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return p, nil
}
