package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	ChangeBooked   = "seats_booked"
	ChangeReleased = "seats_released"
)

// SeatChange is broadcast whenever a unit of work changes seat state.
type SeatChange struct {
	Type      string    `json:"type"`
	BookingID uuid.UUID `json:"booking_id"`
	SeatIDs   []int64   `json:"seat_ids"`
	TsUnix    int64     `json:"ts_unix"`
}

type SeatsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSeatsPubSub(rdb *redis.Client) *SeatsPubSub {
	return &SeatsPubSub{
		rdb:     rdb,
		channel: ChannelSeatsChanged(),
	}
}

func (p *SeatsPubSub) PublishSeatsChanged(
	ctx context.Context,
	changeType string,
	bookingID uuid.UUID,
	seatIDs []int64,
) error {
	msg := SeatChange{
		Type:      changeType,
		BookingID: bookingID,
		SeatIDs:   seatIDs,
		TsUnix:    time.Now().Unix(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every well-formed change until ctx is done or
// the subscription is closed.
func (p *SeatsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, change SeatChange)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if change, ok := decodeSeatChange(m.Payload); ok {
				handler(ctx, change)
			}
		}
	}
}

func decodeSeatChange(payload string) (SeatChange, bool) {
	var change SeatChange
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return SeatChange{}, false
	}
	if change.Type == "" || len(change.SeatIDs) == 0 {
		return SeatChange{}, false
	}
	return change, true
}
