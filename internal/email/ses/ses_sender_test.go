package ses_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/email/ses"
)

type mockSES struct {
	mock.Mock
}

func (m *mockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

func TestSESSender_SendRunSummary(t *testing.T) {
	client := new(mockSES)
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return *in.FromEmailAddress == "Ideaforge <bot@example.com>" &&
			in.Destination.ToAddresses[0] == "team@example.com" &&
			*in.Content.Simple.Subject.Data != ""
	})).Return(&sesv2.SendEmailOutput{}, nil)

	sender := ses.NewSESSenderWithClient(client, &config.EmailConfig{
		FromAddress: "bot@example.com", FromName: "Ideaforge", ToAddress: "team@example.com",
	})
	err := sender.SendRunSummary(context.Background(), &domain.RunSummary{RunID: uuid.New()})

	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSESSender_SendRunSummary_Error(t *testing.T) {
	client := new(mockSES)
	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	sender := ses.NewSESSenderWithClient(client, &config.EmailConfig{FromAddress: "a@b.c", ToAddress: "d@e.f"})
	err := sender.SendRunSummary(context.Background(), &domain.RunSummary{})

	assert.ErrorContains(t, err, "SES SendEmail")
}
