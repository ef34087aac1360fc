package smtp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

func TestCodeDeliverer_RendersCode(t *testing.T) {
	ml := &mockMailer{}
	ml.On("SendEmail", "a@b.com", codeSubject, mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "654321") && strings.Contains(body, "5 minutes")
	})).Return(nil)

	require.NoError(t, NewCodeDeliverer(ml, 5*time.Minute).Deliver(context.Background(), "a@b.com", "654321"))
	ml.AssertExpectations(t)
}

func TestCodeDeliverer_PropagatesSendError(t *testing.T) {
	ml := &mockMailer{}
	ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	err := NewCodeDeliverer(ml, time.Minute).Deliver(context.Background(), "a@b.com", "1")
	assert.EqualError(t, err, "smtp down")
}
