package redis

import "github.com/redis/go-redis/v9"

// incrWithTTL increments KEYS[1] and sets its expiry (ARGV[1], ms) when the
// counter was just created or somehow lost its TTL. One round trip, so a crash
// between INCR and PEXPIRE cannot leave an immortal counter.
var incrWithTTL = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// compareAndDelete deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// popDue removes and returns the lowest scored member of KEYS[1] whose score is
// at most ARGV[1], as {member, score}.
var popDue = redis.NewScript(`
local r = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, 1)
if #r == 0 then
  return false
end
redis.call('ZREM', KEYS[1], r[1])
return r
`)

// Hash fields of a versioned cache entry.
const (
	versionField = "version"
	dataField    = "data"
)

// setIfNewer writes {version: ARGV[1], data: ARGV[2]} to the hash KEYS[1] with
// a TTL of ARGV[3] ms, unless the stored version is already at least ARGV[1].
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)
