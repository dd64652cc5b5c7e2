package storage

import (
	"fmt"
)

// Key prefixes for different data types
const (
	prefixConfig = "/config/"
	prefixEvents = "/data/events/"
)

// ConfigKey returns the key for a sync setting
// Format: /config/{name}
func ConfigKey(name string) []byte {
	return []byte(prefixConfig + name)
}

// EventKey returns the key for a decoded event
// Format: /data/events/{block:020}/{txIndex:06}/{logIndex:06}
func EventKey(blockNumber, txIndex uint64, logIndex uint) []byte {
	return []byte(fmt.Sprintf("%s%020d/%06d/%06d", prefixEvents, blockNumber, txIndex, logIndex))
}

// EventBlockPrefix returns the key prefix shared by all events of a block
func EventBlockPrefix(blockNumber uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", prefixEvents, blockNumber))
}

// prefixUpperBound returns the smallest key greater than every key starting with prefix
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
