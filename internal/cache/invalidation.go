package cache

import (
	"context"
	"strings"

	"github.com/adoptly/apiserver/internal/mq"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Evicter removes cached keys.
type Evicter interface {
	Evict(ctx context.Context, keys ...string) error
}

// Publisher sends a message on a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Subscriber consumes a channel until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Invalidator evicts the cache entries behind a path and broadcasts the
// path so other replicas and the rendering layer can do the same.
type Invalidator struct {
	evicter   Evicter
	publisher Publisher
	channel   string
	log       logrus.FieldLogger
}

func NewInvalidator(evicter Evicter, publisher Publisher, channel string, log logrus.FieldLogger) *Invalidator {
	return &Invalidator{
		evicter:   evicter,
		publisher: publisher,
		channel:   channel,
		log:       log,
	}
}

// Invalidate never fails the caller; eviction and publish errors are logged.
func (i *Invalidator) Invalidate(ctx context.Context, path string) {
	if err := i.evicter.Evict(ctx, KeysForPath(path)...); err != nil {
		i.log.WithFields(logrus.Fields{"path": path, "error": err}).Warn("cache eviction failed")
	}
	if i.publisher == nil {
		return
	}
	_, err := i.publisher.Publish(ctx, i.channel, []byte(path), map[string]string{"path": path})
	if err != nil {
		i.log.WithFields(logrus.Fields{"path": path, "channel": i.channel, "error": err}).Warn("invalidation publish failed")
	}
}

// Listen evicts the keys behind every path received on channel until ctx
// is cancelled.
func Listen(ctx context.Context, sub Subscriber, channel string, evicter Evicter, log logrus.FieldLogger) error {
	return sub.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		path := string(msg.Data)
		if p, ok := msg.Attributes["path"]; ok && p != "" {
			path = p
		}
		if err := evicter.Evict(ctx, KeysForPath(path)...); err != nil {
			log.WithFields(logrus.Fields{"path": path, "error": err}).Warn("cache eviction failed")
			return err
		}
		log.WithField("path", path).Debug("invalidated")
		return nil
	})
}

// KeysForPath maps a public path to the cache keys it covers.
// "/animals/<id>" covers that listing; other paths cover nothing cached.
func KeysForPath(path string) []string {
	rest, ok := strings.CutPrefix(path, "/animals/")
	if !ok {
		return nil
	}
	id, err := uuid.Parse(strings.Trim(rest, "/"))
	if err != nil {
		return nil
	}
	return []string{ListingKey(id)}
}
