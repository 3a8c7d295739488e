package redis

import (
	"context"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockCmdable struct {
	values map[string]string
	zsets  map[string]map[string]float64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		values: map[string]string{},
		zsets:  map[string]map[string]float64{},
	}
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.values[key] = toString(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	val, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, exists := m.values[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = toString(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := m.values[key]; ok {
			delete(m.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (m *mockCmdable) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	set, ok := m.zsets[key]
	if !ok {
		set = map[string]float64{}
		m.zsets[key] = set
	}
	var added int64
	for _, member := range members {
		name := toString(member.Member)
		if _, exists := set[name]; !exists {
			added++
		}
		set[name] = member.Score
	}
	return redis.NewIntResult(added, nil)
}

func (m *mockCmdable) ZRangeByScore(ctx context.Context, key string, by *redis.ZRangeBy) *redis.StringSliceCmd {
	max, err := strconv.ParseFloat(by.Max, 64)
	if err != nil {
		return redis.NewStringSliceResult(nil, err)
	}
	type entry struct {
		member string
		score  float64
	}
	var due []entry
	for member, score := range m.zsets[key] {
		if score <= max {
			due = append(due, entry{member, score})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].score < due[j].score })
	if by.Count > 0 && int64(len(due)) > by.Count {
		due = due[:by.Count]
	}
	out := make([]string, len(due))
	for i, e := range due {
		out[i] = e.member
	}
	return redis.NewStringSliceResult(out, nil)
}

func (m *mockCmdable) ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	var removed int64
	for _, member := range members {
		name := toString(member)
		if _, ok := m.zsets[key][name]; ok {
			delete(m.zsets[key], name)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (m *mockCmdable) ZCard(ctx context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(m.zsets[key])), nil)
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func TestSetNXLockSemantics(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, client.LockKey("sweep"), "owner-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("first SetNX should acquire")
	}

	ok, err = client.SetNX(ctx, client.LockKey("sweep"), "owner-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("second SetNX should be rejected while lock held")
	}

	if err := client.Del(ctx, client.LockKey("sweep")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	ok, _ = client.SetNX(ctx, client.LockKey("sweep"), "owner-2", time.Minute)
	if !ok {
		t.Fatal("lock should be free after delete")
	}
}

func TestSortedSetSchedule(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.ScheduleKey("order-polls")

	if err := client.ZAdd(ctx, key, 100, "order-a"); err != nil {
		t.Fatalf("zadd failed: %v", err)
	}
	if err := client.ZAdd(ctx, key, 200, "order-b"); err != nil {
		t.Fatalf("zadd failed: %v", err)
	}
	if err := client.ZAdd(ctx, key, 300, "order-c"); err != nil {
		t.Fatalf("zadd failed: %v", err)
	}

	due, err := client.ZRangeByScoreMax(ctx, key, 250, 10)
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(due) != 2 || due[0] != "order-a" || due[1] != "order-b" {
		t.Fatalf("unexpected due members: %v", due)
	}

	if err := client.ZRem(ctx, key, "order-a"); err != nil {
		t.Fatalf("zrem failed: %v", err)
	}
	count, err := client.ZCard(ctx, key)
	if err != nil {
		t.Fatalf("zcard failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 remaining members, got %d", count)
	}
}

func TestKeyNamespaces(t *testing.T) {
	client := &Client{}
	if got := client.LockKey("cron-worker"); got != "vl:lock:cron-worker" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := client.ScheduleKey("order-polls"); got != "vl:schedule:order-polls" {
		t.Fatalf("unexpected schedule key %q", got)
	}
}
