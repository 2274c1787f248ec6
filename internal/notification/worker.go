// Package notification broadcasts "new job available" web push messages to
// subscribed washers. Delivery is best effort and never affects the job
// lifecycle.
package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"laundryspot-backend/internal/model"
)

// SubscriptionStore is the persistence contract the worker pool needs.
type SubscriptionStore interface {
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool fans job announcements out to push subscribers.
type WorkerPool struct {
	size    int
	jobs    chan model.Job
	store   SubscriptionStore
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, store SubscriptionStore, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.Job, size*4),
		store:   store,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// SetSender replaces the sender, for tests.
func (wp *WorkerPool) SetSender(s Sender) {
	wp.sender = s
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case job := <-wp.jobs:
			wp.announce(ctx, job)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// Announce queues a newly created job for broadcast. Never blocks the
// creating request: when the queue is full the announcement is dropped.
func (wp *WorkerPool) Announce(job model.Job) {
	select {
	case wp.jobs <- job:
	default:
		log.Printf("notification queue full, dropping announcement for job %d", job.ID)
	}
}

func (wp *WorkerPool) announce(ctx context.Context, job model.Job) {
	subs, err := wp.store.ListSubscriptions(ctx)
	if err != nil {
		log.Printf("error fetching subscriptions for job %d: %v", job.ID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload := []byte(fmt.Sprintf("New laundry job #%d available at %s", job.ID, job.Address))
	for _, sub := range subs {
		wp.send(ctx, sub, payload)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Expired subscription, drop it.
	if resp.StatusCode == http.StatusGone {
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
