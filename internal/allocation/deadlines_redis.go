package allocation

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	id "habita/pkg/domain"
	dErrors "habita/pkg/domain-errors"
)

// deadlineKey holds one sorted set: member = application ID, score = unix
// seconds of the acceptance deadline.
const deadlineKey = "allocation:deadlines"

var redisIndexLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "habita_deadline_index_operation_seconds",
	Help:    "Latency of Redis deadline-index operations",
	Buckets: prometheus.DefBuckets,
}, []string{"op"})

// RedisDeadlineIndex shares the acceptance deadlines across processes, so
// any instance's scheduler can expire offers made by another.
type RedisDeadlineIndex struct {
	client *redis.Client
}

func NewRedisDeadlineIndex(client *redis.Client) *RedisDeadlineIndex {
	return &RedisDeadlineIndex{client: client}
}

func (x *RedisDeadlineIndex) Track(ctx context.Context, appID id.ApplicationID, deadline time.Time) error {
	defer observe("track")()
	err := x.client.ZAdd(ctx, deadlineKey, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: appID.String(),
	}).Err()
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "track deadline", err)
	}
	return nil
}

func (x *RedisDeadlineIndex) Forget(ctx context.Context, appID id.ApplicationID) error {
	defer observe("forget")()
	if err := x.client.ZRem(ctx, deadlineKey, appID.String()).Err(); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "forget deadline", err)
	}
	return nil
}

func (x *RedisDeadlineIndex) Due(ctx context.Context, now time.Time) ([]id.ApplicationID, error) {
	defer observe("due")()
	members, err := x.client.ZRangeByScore(ctx, deadlineKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: formatUnix(now),
	}).Result()
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list due deadlines", err)
	}
	due := make([]id.ApplicationID, 0, len(members))
	for _, member := range members {
		appID, err := id.ParseApplicationID(member)
		if err != nil {
			// A corrupt member must not wedge the whole sweep.
			_ = x.client.ZRem(ctx, deadlineKey, member).Err()
			continue
		}
		due = append(due, appID)
	}
	return due, nil
}

func observe(op string) func() {
	start := time.Now()
	return func() {
		redisIndexLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func formatUnix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
