package twilio_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/jammysunshine/astro-whatsapp-bot/pkg/adapters/twilio"
	"github.com/jammysunshine/astro-whatsapp-bot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	args := m.Called(*params.To, *params.From, *params.Body)
	return &twilioApi.ApiV2010Message{}, args.Error(0)
}

func TestSender_Send(t *testing.T) {
	api := new(mockAPI)
	api.On("CreateMessage", "whatsapp:+15550001111", "whatsapp:+14155238886", "Welcome!").Return(nil).Once()
	api.On("CreateMessage", "whatsapp:+15550001111", "whatsapp:+14155238886", "Pick one:\n1. Daily\n2. Tarot").Return(nil).Once()

	sender, err := twilio.NewSender(twilio.WithFrom("+14155238886"), twilio.WithAPI(api))
	require.NoError(t, err)

	err = sender.Send(context.Background(), "whatsapp:+15550001111", []domain.OutgoingMessage{
		domain.Text("Welcome!"),
		{Kind: domain.MessageChoice, Body: "Pick one:", Options: []domain.OptionView{{ID: "daily", Label: "Daily"}, {ID: "tarot", Label: "Tarot"}}},
	})
	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestSender_StopsAtFirstFailure(t *testing.T) {
	api := new(mockAPI)
	api.On("CreateMessage", mock.Anything, mock.Anything, "first").Return(errors.New("rate limited")).Once()

	sender, err := twilio.NewSender(twilio.WithFrom("whatsapp:+1"), twilio.WithAPI(api))
	require.NoError(t, err)

	err = sender.Send(context.Background(), "+2", []domain.OutgoingMessage{domain.Text("first"), domain.Text("second")})
	assert.ErrorContains(t, err, "rate limited")
	api.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestNewSender_RequiresCredentials(t *testing.T) {
	_, err := twilio.NewSender(twilio.WithFrom("+1"))
	assert.Error(t, err)

	_, err = twilio.NewSender(twilio.WithAccountSID("AC1"), twilio.WithAuthToken("tok"))
	assert.Error(t, err)

	_, err = twilio.NewSender(twilio.WithAccountSID("AC1"), twilio.WithAuthToken("tok"), twilio.WithFrom("+1"))
	assert.NoError(t, err)
}

func TestSplit(t *testing.T) {
	assert.Equal(t, []string{"short"}, twilio.Split("short", 10))

	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, twilio.Split(text, 10))

	chunks := twilio.Split(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, chunks)
}

func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := url
	for _, k := range keys {
		payload += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSignatureValidator(t *testing.T) {
	v := twilio.NewSignatureValidator("12345")
	params := map[string]string{
		"From":       "whatsapp:+15550001111",
		"Body":       "hello",
		"MessageSid": "SM123",
	}
	url := "https://bot.example.com/webhook/twilio"

	assert.True(t, v.Validate(url, params, sign("12345", url, params)))
	assert.False(t, v.Validate(url, params, sign("other", url, params)))
	assert.False(t, v.Validate(url+"?x=1", params, sign("12345", url, params)))
}
