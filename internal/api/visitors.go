package api

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	visitorBits   = 1 << 20
	visitorHashes = 4
	visitorTTL    = 48 * time.Hour
)

// visitorBitOffsets：一次 FNV-64a 拆成高低两半，按 h1+i*h2 取 k 个位偏移
func visitorBitOffsets(ip string) []int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ip))
	sum := h.Sum64()
	h1, h2 := sum&0xffffffff, sum>>32|1
	offs := make([]int64, visitorHashes)
	for i := range offs {
		offs[i] = int64((h1 + uint64(i)*h2) % visitorBits)
	}
	return offs
}

// markVisitor：读写各一次往返；任一位为 0 即视为新访客并补齐所有位
func markVisitor(ctx context.Context, rc *redis.Client, key string, offs []int64) (bool, error) {
	reads := make([]*redis.IntCmd, len(offs))
	pipe := rc.Pipeline()
	for i, o := range offs {
		reads[i] = pipe.GetBit(ctx, key, o)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	fresh := false
	for _, c := range reads {
		if c.Val() == 0 {
			fresh = true
			break
		}
	}
	if !fresh {
		return false, nil
	}
	pipe = rc.Pipeline()
	for _, o := range offs {
		pipe.SetBit(ctx, key, o, 1)
	}
	pipe.Expire(ctx, key, visitorTTL)
	_, err := pipe.Exec(ctx)
	return true, err
}

// firstVisitToday：访客 IP 当日首次建立会话
// 约束：rc 为 nil 或 Redis 出错时按新访客计，不阻断会话创建
func firstVisitToday(ctx context.Context, rc *redis.Client, ip string, now time.Time) bool {
	if ip == "" {
		return false
	}
	if rc == nil {
		return true
	}
	first, _ := markVisitor(ctx, rc, "visitors:"+now.Format("20060102"), visitorBitOffsets(ip))
	return first
}
