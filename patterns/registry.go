package patterns

// Registry holds the available detectors in registration order.
type Registry struct {
	detectors []Detector
	byName    map[string]Detector
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Detector)}
}

// Register adds a detector. Re-registering a name replaces the previous
// detector but keeps its position.
func (r *Registry) Register(d Detector) {
	if _, exists := r.byName[d.Name()]; exists {
		for i, existing := range r.detectors {
			if existing.Name() == d.Name() {
				r.detectors[i] = d
				break
			}
		}
	} else {
		r.detectors = append(r.detectors, d)
	}
	r.byName[d.Name()] = d
}

// Get returns the detector registered under name.
func (r *Registry) Get(name string) (Detector, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns the detectors in registration order.
func (r *Registry) All() []Detector {
	out := make([]Detector, len(r.detectors))
	copy(out, r.detectors)
	return out
}

// DefaultRegistry builds a registry with every built-in detector.
func DefaultRegistry(data MarketData) *Registry {
	r := NewRegistry()
	r.Register(NewEarlyParabolic(data))
	r.Register(NewMomentumBreakout(data))
	r.Register(NewVWAPBounce(data))
	r.Register(NewParabolicMove(data))
	r.Register(NewDeadCatBounce(data))
	r.Register(NewLiquidityGrab(data))
	r.Register(NewPriceAction(data))
	return r
}
