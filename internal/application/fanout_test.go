package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

type published struct {
	establishmentID string
	toast           domain.Toast
}

type recordingToastPublisher struct {
	mu   sync.Mutex
	got  []published
	fail bool
}

func (r *recordingToastPublisher) PublishToast(_ context.Context, establishmentID string, t domain.Toast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, published{establishmentID: establishmentID, toast: t})
	if r.fail {
		return errors.New("redis down")
	}
	return nil
}

func (r *recordingToastPublisher) Published() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.got...)
}

func TestToastPublisherReceivesTransitions(t *testing.T) {
	p, clock := newTestPresenter(t, nil)
	pub := &recordingToastPublisher{}
	dispose := AttachToastPublisher(testLogger(t), p, func() string { return "42" }, pub)
	defer dispose()

	p.Show(context.Background(), order("o1", "1001"))
	clock.Advance(toastDuration)

	require.Eventually(t, func() bool { return len(pub.Published()) == 2 }, time.Second, 5*time.Millisecond)
	got := pub.Published()
	assert.Equal(t, "42", got[0].establishmentID)
	assert.True(t, got[0].toast.Visible())
	assert.Equal(t, domain.HideReasonExpired, got[1].toast.HideReason)
}

func TestToastPublisherSkipsWithoutEstablishmentAndSurvivesErrors(t *testing.T) {
	p, _ := newTestPresenter(t, nil)
	pub := &recordingToastPublisher{fail: true}
	var mu sync.Mutex
	estab := ""
	dispose := AttachToastPublisher(testLogger(t), p, func() string {
		mu.Lock()
		defer mu.Unlock()
		return estab
	}, pub)

	p.Show(context.Background(), order("o1", "1001"))
	mu.Lock()
	estab = "42"
	mu.Unlock()
	p.Dismiss(context.Background())
	p.Show(context.Background(), order("o2", "1002"))

	require.Eventually(t, func() bool { return len(pub.Published()) == 2 }, time.Second, 5*time.Millisecond)
	dispose()
	dispose()

	p.Dismiss(context.Background())
	assert.Len(t, pub.Published(), 2)
}
