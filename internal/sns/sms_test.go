package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "+254712345678", want: "+254712345678"},
		{in: "0712 345 678", want: "+254712345678"},
		{in: "(071) 234-5678", want: "+254712345678"},
		{in: "712345678", wantErr: true},
		{in: "", wantErr: true},
		{in: "+0123456789", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in, "+254")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSMSSender_Send(t *testing.T) {
	fake := &fakeSNS{}
	s := newSMSSender(fake, Config{CountryCode: "+254", SenderID: "BloodLink"})

	require.NoError(t, s.Send(context.Background(), "0712345678", "You have a blood request"))
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "+254712345678", aws.ToString(in.PhoneNumber))
	assert.Equal(t, "You have a blood request", aws.ToString(in.Message))
	assert.Equal(t, "Transactional", aws.ToString(in.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	assert.Equal(t, "BloodLink", aws.ToString(in.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
	assert.Equal(t, "sms", s.Name())
}

func TestSMSSender_InvalidPhoneSkipsPublish(t *testing.T) {
	fake := &fakeSNS{}
	s := newSMSSender(fake, Config{})

	err := s.Send(context.Background(), "12", "hello")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	assert.Empty(t, fake.inputs)
}

func TestSMSSender_PublishError(t *testing.T) {
	s := newSMSSender(&fakeSNS{err: errors.New("opted out")}, Config{})

	err := s.Send(context.Background(), "+254712345678", "hello")
	assert.ErrorContains(t, err, "opted out")
}
