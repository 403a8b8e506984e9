package container

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// resolution is the registry seen by resolvers during one top-level Get. It
// keeps the stack of resolvers being built so that a dependency cycle fails
// instead of recursing forever.
type resolution struct {
	reg Registry

	mu     sync.Mutex
	frames []frame
}

// frame is one resolver being built. A shared class resolver sets
// placeholder once its allocated instance is visible to its own dependencies.
// The instance stays private to the session until the build completes.
type frame struct {
	res         Resolver
	placeholder bool
	instance    any
}

func newResolution(reg Registry) *resolution {
	return &resolution{reg: reg}
}

// sessionOf reuses the session when a resolver is called from inside one.
func sessionOf(reg Registry) *resolution {
	if s, ok := reg.(*resolution); ok {
		return s
	}
	return newResolution(reg)
}

func (s *resolution) Get(id string) (any, error) {
	if !s.reg.Has(id) {
		return nil, &NotFoundError{ID: id}
	}
	res := s.reg.GetResolver(id, true)
	if res == nil {
		return nil, &NotFoundError{ID: id}
	}
	return res.Resolve(s)
}

func (s *resolution) Has(id string) bool { return s.reg.Has(id) }

func (s *resolution) GetResolver(id string, includeAutowired bool) Resolver {
	return s.reg.GetResolver(id, includeAutowired)
}

// enter pushes r. Re-entering a resolver that is already on the stack is only
// allowed when a shared instance was published after its previous frame; the
// next round then stops at that instance.
func (s *resolution) enter(r Resolver) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.last(r); i >= 0 {
		published := false
		for _, f := range s.frames[i+1:] {
			if f.placeholder {
				published = true
				break
			}
		}
		if !published {
			return false
		}
	}
	s.frames = append(s.frames, frame{res: r})
	return true
}

func (s *resolution) leave(r Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.last(r); i >= 0 {
		s.frames = append(s.frames[:i], s.frames[i+1:]...)
	}
}

// published records the instance r allocated before resolving parameters.
func (s *resolution) published(r Resolver, instance any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.last(r); i >= 0 {
		s.frames[i].placeholder = true
		s.frames[i].instance = instance
	}
}

// placeholder returns the instance r published in this session, if any.
func (s *resolution) placeholder(r Resolver) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.frames) - 1; i >= 0; i-- {
		if f := s.frames[i]; f.res == r && f.placeholder {
			return f.instance, true
		}
	}
	return nil, false
}

func (s *resolution) building(r Resolver) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last(r) >= 0
}

func (s *resolution) last(r Resolver) int {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].res == r {
			return i
		}
	}
	return -1
}

// inflight tracks shared builds across sessions: the session building each
// resolver and the resolver each session is blocked on. A session that would
// wait on a build which, through other waiting sessions, waits on itself fails
// instead of blocking forever.
var inflight = struct {
	sync.Mutex
	builder map[Resolver]*resolution
	waiting map[*resolution]Resolver
}{
	builder: make(map[Resolver]*resolution),
	waiting: make(map[*resolution]Resolver),
}

// share runs build for r at most once across concurrent sessions. Callers
// that arrive while a build is running receive its result.
func (s *resolution) share(r Resolver, g *singleflight.Group, key string, build func() (any, error)) (any, error) {
	if !s.wait(r) {
		return nil, circularErr(key)
	}
	defer s.done()
	v, err, _ := g.Do(key, func() (any, error) {
		inflight.Lock()
		inflight.builder[r] = s
		delete(inflight.waiting, s)
		inflight.Unlock()
		defer func() {
			inflight.Lock()
			delete(inflight.builder, r)
			inflight.Unlock()
		}()
		return build()
	})
	return v, err
}

func (s *resolution) wait(r Resolver) bool {
	inflight.Lock()
	defer inflight.Unlock()
	seen := map[*resolution]bool{}
	for cur := inflight.builder[r]; cur != nil && !seen[cur]; {
		if cur == s {
			return false
		}
		seen[cur] = true
		next, ok := inflight.waiting[cur]
		if !ok {
			break
		}
		cur = inflight.builder[next]
	}
	inflight.waiting[s] = r
	return true
}

func (s *resolution) done() {
	inflight.Lock()
	delete(inflight.waiting, s)
	inflight.Unlock()
}

// ContainerOf returns the Container behind r, looking through resolution
// sessions. Factories use it to reach configuration methods.
func ContainerOf(r Registry) (*Container, bool) {
	for {
		switch v := r.(type) {
		case *Container:
			return v, true
		case *resolution:
			r = v.reg
		default:
			return nil, false
		}
	}
}
