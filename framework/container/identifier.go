package container

import (
	"reflect"
	"regexp"
	"slices"
	"sync"
)

// Wildcard is the identifier of the resolver whose options propagate to
// every autowired type that has no closer propagating ancestor.
const Wildcard = "*"

var typeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*(?:[./][A-Za-z0-9_][A-Za-z0-9_-]*)*$`)

// IsTypeID reports whether id is shaped like a type identifier
// ("github.com/acme/app/mail.Mailer"). Anything else ("@db", "mailer host",
// "*") is an ordinary key.
func IsTypeID(id string) bool {
	return typeIDPattern.MatchString(id)
}

// TypeID returns the identifier of t. A pointer to a named struct shares the
// identifier of the struct. Unnamed types have no identifier and return "".
func TypeID(t reflect.Type) string {
	t = normalize(t)
	if t == nil || t.Name() == "" || t.PkgPath() == "" {
		return ""
	}
	return t.PkgPath() + "." + t.Name()
}

// ID returns the identifier of T and records T in the type catalog so that
// the identifier can be autowired or resolved later.
//
//	container.ID[*mail.SMTPMailer]()  // "github.com/acme/app/mail.SMTPMailer"
func ID[T any]() string {
	return catalog.add(reflect.TypeFor[T]())
}

// Register is an alias of ID kept for call sites that only want the side effect.
func Register[T any]() string {
	return ID[T]()
}

// RegisterType records t in the type catalog and returns its identifier.
func RegisterType(t reflect.Type) (string, error) {
	id := catalog.add(t)
	if id == "" {
		return "", configErr(typeString(t), "register", errNotAType)
	}
	return id, nil
}

// Service records the interface I as a service interface. Populate binds a
// concrete type under every service interface it implements. Service panics
// when I is not an interface type, like regexp.MustCompile on a bad pattern.
func Service[I any]() string {
	t := reflect.TypeFor[I]()
	if t.Kind() != reflect.Interface {
		panic(configErr(t.String(), "service", errNotAType))
	}
	id := catalog.add(t)
	catalog.markService(id)
	return id
}

func normalize(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer && t.Name() == "" && t.Elem().Kind() == reflect.Struct {
		return t.Elem()
	}
	return t
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// ── Type catalog ──────────────────────────────────────────────────────────────

// catalogEntry is everything known about one identifier. It is append-only:
// entries are created once and only their policy and constructor may be set.
type catalogEntry struct {
	id      string
	typ     reflect.Type
	ctor    reflect.Value
	policy  *Policy
	service bool
}

func (e *catalogEntry) constructible() bool {
	return e.ctor.IsValid() || e.typ.Kind() == reflect.Struct
}

// typeCatalog is the process-wide directory of named types, like the gob
// type registry. Registries stay per Container; only type knowledge is global.
type typeCatalog struct {
	mu      sync.RWMutex
	entries map[string]*catalogEntry
}

var catalog = &typeCatalog{entries: make(map[string]*catalogEntry)}

func (tc *typeCatalog) add(t reflect.Type) string {
	_, id := tc.entry(t)
	return id
}

func (tc *typeCatalog) entry(t reflect.Type) (*catalogEntry, string) {
	t = normalize(t)
	id := TypeID(t)
	if id == "" {
		return nil, ""
	}
	tc.mu.RLock()
	e, ok := tc.entries[id]
	tc.mu.RUnlock()
	if ok {
		return e, id
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if e, ok := tc.entries[id]; ok {
		return e, id
	}
	e = &catalogEntry{id: id, typ: t, policy: &Policy{}}
	tc.entries[id] = e
	return e, id
}

func (tc *typeCatalog) lookup(id string) (*catalogEntry, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	e, ok := tc.entries[id]
	return e, ok
}

func (tc *typeCatalog) markService(id string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if e, ok := tc.entries[id]; ok {
		e.service = true
	}
}

// servicesOf returns the sorted identifiers of the service interfaces
// implemented by instances of type t.
func (tc *typeCatalog) servicesOf(t reflect.Type) []string {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	var ids []string
	for id, e := range tc.entries {
		if e.service && t.Implements(e.typ) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (tc *typeCatalog) update(id string, fn func(e *catalogEntry)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if e, ok := tc.entries[id]; ok {
		fn(e)
	}
}

// snapshot copies the fields that resolvers read, so a resolver never
// observes a half-applied Declare.
func (tc *typeCatalog) snapshot(id string) (catalogEntry, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	e, ok := tc.entries[id]
	if !ok {
		return catalogEntry{}, false
	}
	return *e, true
}
