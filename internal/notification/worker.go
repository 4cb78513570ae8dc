package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"locker-access-backend/internal/events"
	"locker-access-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// alertCooldown bounds how often one locker's hardware failures produce an
// operator alert.
const alertCooldown = 10 * time.Minute

// WorkerPool consumes locker events and fans them out as web push
// notifications: "locker available" to subscribers when a locker relocks,
// and a cooldown-limited operator alert on hardware failures.
type WorkerPool struct {
	size      int
	jobs      <-chan events.Event
	db        *gorm.DB
	webpush   *webpush.Options
	sender    Sender
	cooldowns *cache.Cache
}

// NewWorkerPool creates a worker pool consuming from the given bus.
func NewWorkerPool(size int, bus *events.Bus, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:      size,
		jobs:      bus.Subscribe(),
		db:        db,
		webpush:   webpushOptions,
		sender:    &WebPushSender{},
		cooldowns: cache.New(alertCooldown, 2*alertCooldown),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case ev := <-wp.jobs:
			wp.handle(ctx, ev)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

func (wp *WorkerPool) handle(ctx context.Context, ev events.Event) {
	switch ev.Action {
	case "lock":
		wp.notifyLockerAvailable(ctx, ev.LockerID)
	case "hardware_failure":
		wp.alertHardwareFailure(ctx, ev)
	}
}

// notifyLockerAvailable pushes to everyone subscribed to the locker.
func (wp *WorkerPool) notifyLockerAvailable(ctx context.Context, lockerID int64) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_locker_mapping slm ON slm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("slm.locker_id = ?", lockerID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for locker %d: %v", lockerID, err)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	var locker model.Locker
	lockerLabel := fmt.Sprintf("%d", lockerID)
	if err := wp.db.WithContext(ctx).
		Select("display_name").
		First(&locker, lockerID).Error; err != nil {
		log.Printf("Error fetching locker %d: %v", lockerID, err)
	} else if locker.DisplayName != "" {
		lockerLabel = locker.DisplayName
	}

	message := fmt.Sprintf("Locker %s is available again", lockerLabel)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// alertHardwareFailure notifies every subscriber of the failing locker, at
// most once per cooldown window per locker.
func (wp *WorkerPool) alertHardwareFailure(ctx context.Context, ev events.Event) {
	key := fmt.Sprintf("hardware_failure:%d", ev.LockerID)
	if _, onCooldown := wp.cooldowns.Get(key); onCooldown {
		return
	}
	wp.cooldowns.SetDefault(key, struct{}{})

	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_locker_mapping slm ON slm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("slm.locker_id = ?", ev.LockerID).
		Find(&subscriptions).Error
	if err != nil {
		log.Printf("Error fetching subscriptions for locker %d: %v", ev.LockerID, err)
		return
	}

	message := fmt.Sprintf("Locker %d is not responding: %s", ev.LockerID, ev.Detail)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
