package mail_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/mail"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

type fakeSender struct {
	err  error
	sent []*gomail.Msg
}

func (f *fakeSender) DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

type recordingGateway struct {
	mu       sync.Mutex
	subjects []string
	release  chan struct{}
}

func (r *recordingGateway) Send(ctx context.Context, to, subject, htmlBody string) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

func TestSMTPGateway_Send(t *testing.T) {
	sender := &fakeSender{}
	g := mail.NewSMTPGateway(sender, "noreply@example.com")

	require.NoError(t, g.Send(context.Background(), "ops@example.com", "Import Completed - job-1", "<p>done</p>"))
	require.Len(t, sender.sent, 1)

	var buf bytes.Buffer
	_, err := sender.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Import Completed - job-1")
	assert.Contains(t, raw, "To: <ops@example.com>")
	assert.Contains(t, raw, "text/html")
	assert.Contains(t, raw, "<p>done</p>")
}

func TestSMTPGateway_Failures(t *testing.T) {
	g := mail.NewSMTPGateway(&fakeSender{err: errors.New("connection refused")}, "noreply@example.com")

	err := g.Send(context.Background(), "ops@example.com", "s", "b")
	assert.True(t, exception.IsTemporary(err))

	err = g.Send(context.Background(), "not an address", "s", "b")
	assert.True(t, exception.IsValidation(err))
}

func TestAsyncGateway_DeliversAndDrains(t *testing.T) {
	next := &recordingGateway{}
	g := mail.NewAsyncGateway(next, 2, 10)

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, g.Send(context.Background(), "ops@example.com", s, ""))
	}
	require.NoError(t, g.Close(context.Background()))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, next.subjects)

	err := g.Send(context.Background(), "ops@example.com", "late", "")
	assert.True(t, exception.IsRejection(err))
}

func TestAsyncGateway_RejectsWhenFull(t *testing.T) {
	next := &recordingGateway{release: make(chan struct{})}
	g := mail.NewAsyncGateway(next, 1, 1)

	require.NoError(t, g.Send(context.Background(), "ops@example.com", "first", ""))
	// The worker blocks on "first" or holds it queued; at most two fit.
	var rejected error
	for i := 0; i < 3 && rejected == nil; i++ {
		rejected = g.Send(context.Background(), "ops@example.com", "more", "")
	}
	require.Error(t, rejected)
	assert.ErrorIs(t, rejected, mail.ErrQueueFull)

	close(next.release)
	require.NoError(t, g.Close(context.Background()))
}
