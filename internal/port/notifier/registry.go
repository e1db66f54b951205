package notifier

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a Notifier from provider-specific options.
type Factory func(opts map[string]string) (Notifier, error)

var (
	regMu     sync.RWMutex
	providers = make(map[string]Factory)
)

// Register makes a provider available under name. Adapters call this from
// init(); registering the same name twice is a programming error.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := providers[name]; dup {
		panic(fmt.Sprintf("notifier: duplicate registration for %q", name))
	}
	providers[name] = f
}

// New builds the named provider with the given options.
func New(name string, opts map[string]string) (Notifier, error) {
	regMu.RLock()
	f, ok := providers[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notifier: unknown provider %q", name)
	}
	return f(opts)
}

// Available lists the registered provider names, sorted.
func Available() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
