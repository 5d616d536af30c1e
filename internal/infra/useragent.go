package infra

import "sync"

var (
	// currentUserAgent is protected by a mutex; bootstrap sets it once the version is known.
	uaMu             sync.RWMutex
	currentUserAgent = AppName + "/dev"
)

// GetUserAgent returns the current active User-Agent string. (Thread-safe)
func GetUserAgent() string {
	uaMu.RLock()
	defer uaMu.RUnlock()
	return currentUserAgent
}

// SetUserAgent updates the global User-Agent string. (Thread-safe)
func SetUserAgent(ua string) {
	uaMu.Lock()
	defer uaMu.Unlock()
	currentUserAgent = ua
}
