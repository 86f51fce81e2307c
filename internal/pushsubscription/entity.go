package pushsubscription

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Subscription is a browser push endpoint that receives escalation and
// budget notifications for every project.
type Subscription struct {
	ID        string    `yaml:"id" json:"id"`
	Endpoint  string    `yaml:"endpoint" json:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key" json:"p256dh_key"`
	AuthKey   string    `yaml:"auth_key" json:"auth_key"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

func NewSubscription(endpoint, p256dhKey, authKey string) *Subscription {
	return &Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  endpoint,
		P256dhKey: p256dhKey,
		AuthKey:   authKey,
		CreatedAt: time.Now(),
	}
}
