package execution

import "sync"

// Registry holds the active trading accounts. Injected wherever accounts are
// needed instead of a package-level map.
type Registry struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func NewRegistry() *Registry {
	return &Registry{accounts: make(map[string]*Account)}
}

// Add registers an account, replacing any previous account with the same ID.
func (r *Registry) Add(a *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID()] = a
}

// Get returns the account registered under id.
func (r *Registry) Get(id string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	return a, ok
}

// All returns a snapshot of the registered accounts.
func (r *Registry) All() []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out
}
