package redis

import "fmt"

// Key prefix for all server data
const keyPrefix = "wordgroups"

// accountKey returns the Redis key for a UserAccount
func accountKey(username string) string {
	return fmt.Sprintf("%s:account:%s", keyPrefix, username)
}

// accountIndexKey returns the Redis key for the SET of account keys
func accountIndexKey() string {
	return fmt.Sprintf("%s:idx:accounts", keyPrefix)
}

// matchKey returns the Redis key for an archived match
func matchKey(run int64) string {
	return fmt.Sprintf("%s:match:%d", keyPrefix, run)
}

// historyIndexKey returns the Redis key for the ZSET of match keys scored by run
func historyIndexKey() string {
	return fmt.Sprintf("%s:idx:history", keyPrefix)
}
