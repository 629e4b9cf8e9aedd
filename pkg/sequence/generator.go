package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"license-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

type Generator interface {
	NextLicenseCode(ctx context.Context) (string, error)
}

// Counter is the subset of redis used for daily sequences.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

type RedisGenerator struct {
	rdb Counter
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return NewGenerator(p.Redis, time.Now)
}

func NewGenerator(rdb Counter, now func() time.Time) *RedisGenerator {
	return &RedisGenerator{rdb: rdb, now: now}
}

// NextLicenseCode returns LIC-YYMMDD-NNNXX: a base36 daily counter padded to
// three characters followed by two random characters.
func (g *RedisGenerator) NextLicenseCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, rediskey.LicenseCodePrefix)
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	now := g.now().UTC()
	today := now.Format("060102")
	key := rediskey.BuildDailySequenceKey(prefix, today)

	var encodedSeq string
	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		zap.L().Warn("sequence unavailable, using random serial", zap.String("key", key), zap.Error(err))
		if encodedSeq, err = randomAlphaNumeric(3); err != nil {
			return "", err
		}
	} else {
		if seq == 1 {
			endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
			_ = g.rdb.Expire(ctx, key, endOfDay.Sub(now)).Err()
		}
		encodedSeq = strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))
	}

	randSuffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, today, encodedSeq, randSuffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
