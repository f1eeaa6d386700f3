// README: Firestore shape of the "notifications" collection.
package notification

import (
	"time"

	"cabdispatch/internal/types"
)

const Collection = "notifications"

type Document struct {
	UserID           string    `firestore:"userId"`
	Type             string    `firestore:"type"`
	Title            string    `firestore:"title"`
	Body             string    `firestore:"body"`
	RelatedBookingID string    `firestore:"relatedBookingId,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt"`
	Read             bool      `firestore:"read"`
}

func NewDocument(n Notification) Document {
	return Document{
		UserID:           string(n.UserID),
		Type:             string(n.Type),
		Title:            n.Title,
		Body:             n.Body,
		RelatedBookingID: string(n.RelatedBookingID),
		CreatedAt:        n.CreatedAt,
		Read:             n.Read,
	}
}

func (d Document) Notification(id types.ID) Notification {
	return Notification{
		ID:               id,
		UserID:           types.ID(d.UserID),
		Type:             Type(d.Type),
		Title:            d.Title,
		Body:             d.Body,
		RelatedBookingID: types.ID(d.RelatedBookingID),
		CreatedAt:        d.CreatedAt,
		Read:             d.Read,
	}
}
