// README: Delivery sinks for notifications (push via FCM, or log only).
package notification

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"cabdispatch/internal/infra"
)

var ErrNoDeviceToken = errors.New("no device token")

// Sink delivers an already persisted notification to the user's device.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// FCMSink pushes through Firebase Cloud Messaging using the token stored on users/{id}.fcmToken.
type FCMSink struct {
	fs  *firestore.Client
	msg *messaging.Client
}

func NewFCMSink(fs *firestore.Client, msg *messaging.Client) *FCMSink {
	return &FCMSink{fs: fs, msg: msg}
}

func (s *FCMSink) Notify(ctx context.Context, n Notification) error {
	snap, err := s.fs.Collection("users").Doc(string(n.UserID)).Get(ctx)
	if infra.IsNotFound(err) {
		return ErrNoDeviceToken
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", n.UserID, err)
	}
	raw, err := snap.DataAt("fcmToken")
	if err != nil {
		return ErrNoDeviceToken
	}
	token, _ := raw.(string)
	if token == "" {
		return ErrNoDeviceToken
	}
	_, err = s.msg.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: map[string]string{
			"type":           string(n.Type),
			"notificationId": string(n.ID),
			"bookingId":      string(n.RelatedBookingID),
		},
	})
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

// LogSink only records the notification; used when push delivery is not configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.log.Info("notification",
		zap.String("user_id", string(n.UserID)),
		zap.String("type", string(n.Type)),
		zap.String("booking_id", string(n.RelatedBookingID)),
		zap.String("title", n.Title),
	)
	return nil
}
