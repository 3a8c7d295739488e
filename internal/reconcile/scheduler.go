package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/virtuline/virtuline-backend/pkg/redis"
)

const scheduleName = "order-polls"

// Scheduler persists each order's next eligible poll time in a redis sorted
// set scored by unix seconds. Because the marker survives process restarts, a
// crashed worker resumes its poll chains instead of dropping them.
type Scheduler struct {
	redis *redis.Client
}

// NewScheduler wires a poll scheduler on the shared redis client.
func NewScheduler(client *redis.Client) *Scheduler {
	return &Scheduler{redis: client}
}

// Schedule records when orderID becomes eligible for its next status check.
// Re-scheduling an already scheduled order moves its marker.
func (s *Scheduler) Schedule(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return s.redis.ZAdd(ctx, s.redis.ScheduleKey(scheduleName), float64(at.Unix()), orderID.String())
}

// Due returns up to limit orders whose markers have come due, oldest first.
// Entries stay in the set until Remove or a later Schedule; a crash between
// Due and processing therefore re-surfaces the same orders.
func (s *Scheduler) Due(ctx context.Context, now time.Time, limit int64) ([]uuid.UUID, error) {
	members, err := s.redis.ZRangeByScoreMax(ctx, s.redis.ScheduleKey(scheduleName), float64(now.Unix()), limit)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		id, parseErr := uuid.Parse(member)
		if parseErr != nil {
			// drop unparseable members so they cannot wedge the queue
			_ = s.redis.ZRem(ctx, s.redis.ScheduleKey(scheduleName), member)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Remove ends an order's poll chain.
func (s *Scheduler) Remove(ctx context.Context, orderID uuid.UUID) error {
	return s.redis.ZRem(ctx, s.redis.ScheduleKey(scheduleName), orderID.String())
}

// Pending reports how many poll markers exist, for instrumentation.
func (s *Scheduler) Pending(ctx context.Context) (int64, error) {
	return s.redis.ZCard(ctx, s.redis.ScheduleKey(scheduleName))
}
