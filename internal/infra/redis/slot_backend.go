package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const maxTxRetries = 10

// ErrTooManyRetries is returned when a slot kept changing under a WATCH.
var ErrTooManyRetries = errors.New("redis: slot update retries exhausted")

// SlotBackend stores each slot as one Redis string key.
// Updates use WATCH/MULTI so concurrent writers on any instance serialize per slot.
// Every successful write is announced on a pub/sub channel.
type SlotBackend struct {
	client *redis.Client
	prefix string
	origin string
}

type slotNotice struct {
	Slot   string `json:"slot"`
	Origin string `json:"origin"`
}

func NewSlotBackend(client *redis.Client, prefix string) *SlotBackend {
	if prefix == "" {
		prefix = "classroom:"
	}
	return &SlotBackend{client: client, prefix: prefix, origin: uuid.NewString()}
}

func (b *SlotBackend) key(slot string) string {
	return b.prefix + "slot:" + slot
}

func (b *SlotBackend) channel() string {
	return b.prefix + "slot-changes"
}

func (b *SlotBackend) Load(ctx context.Context, slot string) ([]byte, error) {
	raw, err := b.client.Get(ctx, b.key(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return raw, err
}

func (b *SlotBackend) Update(ctx context.Context, slot string, fn func([]byte) ([]byte, error)) error {
	key := b.key(slot)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := b.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		b.announce(ctx, slot)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTooManyRetries, slot)
}

func (b *SlotBackend) Delete(ctx context.Context, slots ...string) error {
	if len(slots) == 0 {
		return nil
	}
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = b.key(slot)
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	for _, slot := range slots {
		b.announce(ctx, slot)
	}
	return nil
}

// announce is best-effort; a lost notice only delays a remote refresh.
func (b *SlotBackend) announce(ctx context.Context, slot string) {
	payload, _ := json.Marshal(slotNotice{Slot: slot, Origin: b.origin})
	if err := b.client.Publish(ctx, b.channel(), payload).Err(); err != nil {
		log.Debugf("slot notice for %s not published: %v", slot, err)
	}
}

// Listen calls fn for every slot written by another SlotBackend until ctx ends.
// ready, if non-nil, is closed once the subscription is active.
func (b *SlotBackend) Listen(ctx context.Context, fn func(slot string), ready chan<- struct{}) error {
	sub := b.client.Subscribe(ctx, b.channel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel(), err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var notice slotNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				log.Warnf("malformed slot notice: %v", err)
				continue
			}
			if notice.Origin == b.origin {
				continue
			}
			fn(notice.Slot)
		}
	}
}
