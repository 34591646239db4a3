package workflow

import (
	log "github.com/sirupsen/logrus"

	"github.com/hrishi0102/patchpay/internal/database/models"
	"github.com/hrishi0102/patchpay/internal/database/stores"
)

// Publisher receives notifications after they are persisted, e.g. to push
// them over a websocket. May be nil.
type Publisher interface {
	Publish(n models.Notification)
}

// eventBuffer accumulates notifications during a workflow step so they are
// only written after the core state transition has committed. A failed
// notification write never corrupts core state.
type eventBuffer struct {
	pending []models.Notification
}

func (b *eventBuffer) add(userID, kind, message, relatedID, onModel string) {
	b.pending = append(b.pending, models.Notification{
		UserID:    userID,
		Type:      kind,
		Message:   message,
		RelatedID: relatedID,
		OnModel:   onModel,
	})
}

func (b *eventBuffer) flush(store *stores.NotificationStore, pub Publisher) {
	for i := range b.pending {
		n := b.pending[i]
		if err := store.Insert(&n); err != nil {
			log.Errorf("failed to record %s notification for user %s: %v", n.Type, n.UserID, err)
			continue
		}
		if pub != nil {
			pub.Publish(n)
		}
	}
	b.pending = nil
}
