package verification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/flow-auth/internal/core/domain"
)

// MockMailer is a mock implementation of domain.Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

const addr = "12345678@mail.sustech.edu.cn"

func newTestIssuer(t *testing.T, mailer domain.Mailer) (*Issuer, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)}
	return NewIssuer(mailer, WithClock(c.Now)), c
}

func TestValidateAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		candidate string
		wantErr   error
	}{
		{candidate: "12345678@mail.sustech.edu.cn"},
		{candidate: "12345678@sustech.edu.cn"},
		{candidate: "11712009@mail.sustc.edu.cn"},
		{candidate: "11712009@sustc.edu.cn"},
		{candidate: "abc@mail.sustech.edu.cn", wantErr: domain.ErrNotStudent},
		{candidate: "1234567@mail.sustech.edu.cn", wantErr: domain.ErrNotStudent},
		{candidate: "1234", wantErr: domain.ErrNotStudent},
		{candidate: "", wantErr: domain.ErrNotStudent},
		{candidate: "12345678@gmail.com", wantErr: domain.ErrNotSUSTech},
		{candidate: "123456789@mail.sustech.edu.cn", wantErr: domain.ErrNotSUSTech},
		{candidate: "12345678@mail.sustech.edu.cn.evil.com", wantErr: domain.ErrNotSUSTech},
		{candidate: "12345678", wantErr: domain.ErrNotSUSTech},
	}

	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			got, err := ValidateAddress(tt.candidate)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.candidate, got)
		})
	}
}

func TestIssuer_RequestCodeSendsLink(t *testing.T) {
	t.Parallel()

	mailer := new(MockMailer)
	iss, c := newTestIssuer(t, mailer)
	iss.newCode = func() string { return "code-1" }

	mailer.On("Send", mock.Anything, addr, "Flow 注册链接", "https://sustechflow.top/signup?vcode=code-1").
		Return(nil).Once()

	entry, err := iss.RequestCode(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, addr, entry.Email)
	assert.Equal(t, "code-1", entry.Code)
	assert.Equal(t, c.Now(), entry.IssuedAt)

	require.NoError(t, iss.ValidateCode(addr, "code-1"))
	mailer.AssertExpectations(t)
}

func TestIssuer_RequestCodeRejectsBadAddress(t *testing.T) {
	t.Parallel()

	mailer := new(MockMailer)
	iss, _ := newTestIssuer(t, mailer)

	_, err := iss.RequestCode(context.Background(), "12345678@gmail.com")
	assert.ErrorIs(t, err, domain.ErrNotSUSTech)
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIssuer_Cooldown(t *testing.T) {
	t.Parallel()

	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, addr, mock.Anything, mock.Anything).Return(nil)
	iss, c := newTestIssuer(t, mailer)

	first, err := iss.RequestCode(context.Background(), addr)
	require.NoError(t, err)

	c.Advance(59 * time.Second)
	_, err = iss.RequestCode(context.Background(), addr)
	assert.ErrorIs(t, err, domain.ErrTooMany)

	c.Advance(time.Second)
	second, err := iss.RequestCode(context.Background(), addr)
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)

	assert.ErrorIs(t, iss.ValidateCode(addr, first.Code), domain.ErrCodeInvalid, "superseded code")
	assert.NoError(t, iss.ValidateCode(addr, second.Code))
	mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestIssuer_ValidateCode(t *testing.T) {
	t.Parallel()

	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	iss, c := newTestIssuer(t, mailer)

	assert.ErrorIs(t, iss.ValidateCode(addr, "anything"), domain.ErrCodeInvalid, "nothing issued")

	entry, err := iss.RequestCode(context.Background(), addr)
	require.NoError(t, err)

	assert.ErrorIs(t, iss.ValidateCode(addr, "wrong"), domain.ErrCodeInvalid)
	assert.ErrorIs(t, iss.ValidateCode("87654321@sustech.edu.cn", entry.Code), domain.ErrCodeInvalid)

	// Validation alone does not use the code up.
	require.NoError(t, iss.ValidateCode(addr, entry.Code))
	require.NoError(t, iss.ValidateCode(addr, entry.Code))

	c.Advance(30*time.Minute - time.Second)
	require.NoError(t, iss.ValidateCode(addr, entry.Code))

	c.Advance(time.Second)
	assert.ErrorIs(t, iss.ValidateCode(addr, entry.Code), domain.ErrCodeInvalid)
	assert.Zero(t, iss.codes.Len(), "expired entry is dropped")
}

func TestIssuer_ConsumeIsSingleUse(t *testing.T) {
	t.Parallel()

	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	iss, _ := newTestIssuer(t, mailer)

	entry, err := iss.RequestCode(context.Background(), addr)
	require.NoError(t, err)

	assert.ErrorIs(t, iss.Consume(addr, "wrong"), domain.ErrCodeInvalid)
	require.NoError(t, iss.Consume(addr, entry.Code))
	assert.ErrorIs(t, iss.Consume(addr, entry.Code), domain.ErrCodeInvalid)
	assert.ErrorIs(t, iss.ValidateCode(addr, entry.Code), domain.ErrCodeInvalid)
}

func TestIssuer_MailFailureWithdrawsCode(t *testing.T) {
	t.Parallel()

	smtpDown := errors.New("smtp: connection refused")
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, addr, mock.Anything, mock.Anything).Return(smtpDown).Once()
	mailer.On("Send", mock.Anything, addr, mock.Anything, mock.Anything).Return(nil).Once()
	iss, _ := newTestIssuer(t, mailer)

	failed, err := iss.RequestCode(context.Background(), addr)
	require.Error(t, err)
	assert.ErrorIs(t, err, smtpDown)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Empty(t, failed.Code)
	assert.Zero(t, iss.codes.Len())

	// No cooldown applies after a failed delivery.
	entry, err := iss.RequestCode(context.Background(), addr)
	require.NoError(t, err)
	assert.NoError(t, iss.ValidateCode(addr, entry.Code))
	mailer.AssertExpectations(t)
}

func TestIssuer_LinkFormat(t *testing.T) {
	t.Parallel()

	iss := NewIssuer(nil, WithSignupURL("https://example.edu/join?from=mail"))
	link := iss.link("a b")
	assert.True(t, strings.HasPrefix(link, "https://example.edu/join?from=mail&vcode="))
	assert.Equal(t, "https://example.edu/join?from=mail&vcode=a+b", link)
}
