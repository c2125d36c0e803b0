package utils

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/greenloop/ecotrack/config"
)

// Registration abuse counters. Redis-backed so limits hold across instances;
// when Redis is unreachable the counters degrade to per-process memory, same
// as the verification code store.

type regEntry struct {
	count     int
	expiresAt time.Time
}

var (
	regStore   = map[string]regEntry{}
	regStoreMu sync.Mutex
)

func regKey(parts ...string) string {
	return "ecotrack:reg:" + strings.Join(parts, ":")
}

func regMemSetNX(key string, ttl time.Duration) bool {
	regStoreMu.Lock()
	defer regStoreMu.Unlock()
	if e, ok := regStore[key]; ok && time.Now().Before(e.expiresAt) {
		return false
	}
	regStore[key] = regEntry{count: 1, expiresAt: time.Now().Add(ttl)}
	return true
}

func regMemIncr(key string, ttl time.Duration) int {
	regStoreMu.Lock()
	defer regStoreMu.Unlock()
	e, ok := regStore[key]
	if !ok || time.Now().After(e.expiresAt) {
		e = regEntry{expiresAt: time.Now().Add(ttl)}
	}
	e.count++
	regStore[key] = e
	return e.count
}

func regMemCount(key string) int {
	regStoreMu.Lock()
	defer regStoreMu.Unlock()
	e, ok := regStore[key]
	if !ok || time.Now().After(e.expiresAt) {
		return 0
	}
	return e.count
}

// RegistrationCooldownTry enforces a short cooldown between attempts per IP.
func RegistrationCooldownTry(ip string) bool {
	cfg := config.Get()
	sec := cfg.RegisterAttemptCooldownSec
	if sec <= 0 {
		return true
	}
	ttl := time.Duration(sec) * time.Second
	key := regKey("cooldown", ip)

	cli := GetRedis()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ok, err := cli.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return regMemSetNX(key, ttl)
	}
	return ok
}

// RegistrationDailyLimitCheck allows up to N successful registrations per day per IP.
func RegistrationDailyLimitCheck(ip string) bool {
	cfg := config.Get()
	limit := cfg.RegisterMaxPerIPPerDay
	if limit <= 0 {
		return true
	}
	key := regKey("succday", ip, time.Now().Format("20060102"))

	cli := GetRedis()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := cli.Get(ctx, key).Int()
	if err == redis.Nil {
		n = 0
	} else if err != nil {
		n = regMemCount(key)
	}
	return n < limit
}

// RegistrationDailyIncrement increments the success counter for today.
func RegistrationDailyIncrement(ip string) {
	key := regKey("succday", ip, time.Now().Format("20060102"))
	ttl := time.Until(time.Now().Truncate(24 * time.Hour).Add(24 * time.Hour))

	cli := GetRedis()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := cli.Incr(ctx, key).Err(); err != nil {
		regMemIncr(key, ttl)
		return
	}
	_ = cli.Expire(ctx, key, ttl).Err()
}

// RegistrationFailRecord increments failure count per hour; returns current count.
func RegistrationFailRecord(ip string) int {
	key := regKey("failhour", ip, time.Now().Format("2006010215"))

	cli := GetRedis()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := cli.Incr(ctx, key).Result()
	if err != nil {
		return regMemIncr(key, time.Hour)
	}
	_ = cli.Expire(ctx, key, time.Hour).Err()
	return int(n)
}

// RegistrationIsBanned checks temporary ban status for IP.
func RegistrationIsBanned(ip string) bool {
	key := regKey("ban", ip)

	cli := GetRedis()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	exists, err := cli.Exists(ctx, key).Result()
	if err != nil {
		return regMemCount(key) > 0
	}
	return exists > 0
}

// RegistrationBan sets a temporary ban for IP.
func RegistrationBan(ip string) {
	cfg := config.Get()
	minutes := cfg.RegisterTempBanMinutes
	if minutes <= 0 {
		minutes = 60
	}
	ttl := time.Duration(minutes) * time.Minute
	key := regKey("ban", ip)

	cli := GetRedis()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := cli.Set(ctx, key, fmt.Sprintf("ban-%s", ip), ttl).Err(); err != nil {
		regStoreMu.Lock()
		regStore[key] = regEntry{count: 1, expiresAt: time.Now().Add(ttl)}
		regStoreMu.Unlock()
	}
}
