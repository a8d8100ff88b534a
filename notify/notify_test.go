package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPNotifierBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "bot", Password: "pw", From: "bot@example.com"})
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, n.Notify(context.Background(), "ana@example.com", "Employee Approved", "line one\nline two"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "bot@example.com", gotFrom)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)
	msg := string(gotMsg)
	assert.True(t, strings.HasPrefix(msg, "From: bot@example.com\r\n"))
	assert.Contains(t, msg, "Subject: Employee Approved\r\n")
	assert.True(t, strings.HasSuffix(msg, "line one\r\nline two"))
}

func TestSMTPNotifierHonoursCancellation(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "localhost", Port: 25})
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not run")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, "a@example.com", "s", "b"), context.Canceled)
}

func TestDispatchSwallowsErrors(t *testing.T) {
	rec := &Recorder{Err: errors.New("relay down")}
	Dispatch(context.Background(), rec, cmtlog.NewNopLogger(), "a@example.com", "Access Request Denied", "body")
	assert.Equal(t, []string{"Access Request Denied"}, rec.Subjects())

	Dispatch(context.Background(), rec, cmtlog.NewNopLogger(), "", "ignored", "body")
	Dispatch(context.Background(), nil, cmtlog.NewNopLogger(), "a@example.com", "ignored", "body")
	assert.Len(t, rec.Messages, 1)
}
