// Package loader registers resolvers from declarative definitions.
//
// A definition tree maps identifiers to values. The value decides the
// resolver that is registered:
//
//	{
//	  "github.com/acme/app.Mailer": "github.com/acme/app.SMTPMailer",
//	  "github.com/acme/app.SMTPMailer": {"shared": true, "args": ["mail.local"]},
//	  "@primary": {"_ref": "github.com/acme/app.DB", "args": [{"_env": "DB_DSN"}]},
//	  "@retries": 3,
//	  "*": {"shared": true}
//	}
//
// Reserved keys select a resolver explicitly: _type (with _args or the rest of
// the map), _ref, _value, _const, _global and _env. A string is a reference at
// the top level and a literal inside args. A map without reserved keys is a
// class resolver with option keys shared, propagate, alias, args and call.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/km-arc/lightcontainer/framework/container"
)

const (
	keyType   = "_type"
	keyArgs   = "_args"
	keyRef    = "_ref"
	keyValue  = "_value"
	keyConst  = "_const"
	keyGlobal = "_global"
	keyEnv    = "_env"
)

var json = jsoniter.Config{UseNumber: true}.Froze()

type mode int

const (
	referenceMode mode = iota
	literalMode
)

// LoaderError reports the definition that could not be decoded.
type LoaderError struct {
	ID  string
	Err error
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("loader: entry %q: %v", e.ID, e.Err)
}

func (e *LoaderError) Unwrap() error { return e.Err }

// Loader decodes definition trees into resolvers.
type Loader struct {
	constants map[string]any
	globals   map[string]any
	log       *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithConstants sets the table read by _const.
func WithConstants(m map[string]any) Option {
	return func(l *Loader) { l.constants = m }
}

// WithGlobals sets the table read by _global. Values must be pointers.
func WithGlobals(m map[string]any) Option {
	return func(l *Loader) { l.globals = m }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// New returns a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load decodes every entry of tree and registers the result on c. Nothing is
// registered unless every entry decodes.
func (l *Loader) Load(c *container.Container, tree map[string]any) error {
	entries := make(map[string]container.Resolver, len(tree))
	var errs []error
	for _, id := range sortedKeys(tree) {
		res, err := l.Decode(id, tree[id])
		if err != nil {
			errs = append(errs, &LoaderError{ID: id, Err: err})
			continue
		}
		entries[id] = res
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if err := c.SetAll(entries); err != nil {
		return err
	}
	l.log.Debug("definitions loaded",
		zap.String("container", c.ID()),
		zap.Int("count", len(entries)),
	)
	return nil
}

// LoadJSON loads a JSON object of definitions.
func (l *Loader) LoadJSON(c *container.Container, data []byte) error {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("loader: decode json: %w", err)
	}
	return l.Load(c, normalizeNumbers(tree).(map[string]any))
}

// LoadYAML loads a YAML mapping of definitions.
func (l *Loader) LoadYAML(c *container.Container, data []byte) error {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("loader: decode yaml: %w", err)
	}
	return l.Load(c, tree)
}

// LoadFile loads a .json, .yaml or .yml file.
func (l *Loader) LoadFile(c *container.Container, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = l.LoadJSON(c, data)
	case ".yaml", ".yml":
		err = l.LoadYAML(c, data)
	default:
		return fmt.Errorf("loader: unsupported definition file %q", path)
	}
	if err != nil {
		return err
	}
	l.log.Info("definitions file loaded", zap.String("path", path))
	return nil
}

// Decode turns one top-level definition into a resolver.
func (l *Loader) Decode(id string, v any) (container.Resolver, error) {
	res, err := l.decode(id, v, referenceMode)
	if err != nil {
		return nil, err
	}
	if h, ok := res.(interface{ Err() error }); ok && h.Err() != nil {
		return nil, h.Err()
	}
	return res, nil
}

func (l *Loader) decode(id string, v any, m mode) (container.Resolver, error) {
	switch x := v.(type) {
	case nil:
		return container.Null(), nil
	case bool:
		if x {
			return container.True(), nil
		}
		return container.False(), nil
	case string:
		if m == literalMode {
			return container.Value(x), nil
		}
		return l.reference(id, x, nil)
	case map[string]any:
		return l.decodeMap(id, x, m)
	default:
		return container.Value(x), nil
	}
}

func (l *Loader) decodeMap(id string, v map[string]any, m mode) (container.Resolver, error) {
	if t, ok := v[keyType]; ok {
		name, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", keyType)
		}
		args, ok := v[keyArgs]
		if !ok {
			args = without(v, keyType)
		}
		return l.typed(id, name, args)
	}
	if t, ok := v[keyRef]; ok {
		target, ok := t.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", keyRef)
		}
		return l.reference(id, target, without(v, keyRef))
	}
	if val, ok := v[keyValue]; ok {
		return container.Value(val), nil
	}
	if name, ok := v[keyConst]; ok {
		val, ok := l.constants[fmt.Sprint(name)]
		if !ok {
			return nil, fmt.Errorf("undefined constant %q", name)
		}
		return container.Value(val), nil
	}
	if name, ok := v[keyGlobal]; ok {
		return l.global(fmt.Sprint(name))
	}
	if name, ok := v[keyEnv]; ok {
		return container.Env(fmt.Sprint(name)), nil
	}
	if m == literalMode {
		return container.Value(v), nil
	}
	return l.class(id, v)
}

func (l *Loader) typed(id, name string, args any) (container.Resolver, error) {
	switch name {
	case "ClassResolver":
		opts, err := optionMap(args)
		if err != nil {
			return nil, err
		}
		return l.class(id, opts)
	case "ReferenceResolver":
		opts, err := optionMap(args)
		if err != nil {
			return nil, err
		}
		target, ok := opts["target"].(string)
		if !ok || target == "" {
			return nil, fmt.Errorf("ReferenceResolver needs a target")
		}
		return l.reference(id, target, without(opts, "target"))
	case "ValueResolver":
		return container.Value(args), nil
	case "EnvResolver":
		name, err := nameArg(args)
		if err != nil {
			return nil, err
		}
		return container.Env(name), nil
	case "VarResolver":
		name, err := nameArg(args)
		if err != nil {
			return nil, err
		}
		return l.global(name)
	}
	return nil, fmt.Errorf("unknown resolver type %q", name)
}

func (l *Loader) class(id string, opts map[string]any) (container.Resolver, error) {
	if id == container.Wildcard {
		w := container.NewWildcard()
		return w, applyOptions(l, w, opts)
	}
	r, err := container.NewClassResolver(id)
	if err != nil {
		return nil, err
	}
	return r, applyOptions(l, r, opts)
}

// reference builds a type alias under a type id or inside args, and a named
// instance under any other id.
func (l *Loader) reference(id, target string, opts map[string]any) (container.Resolver, error) {
	if target == "" {
		return nil, fmt.Errorf("empty reference")
	}
	if target == id {
		return nil, fmt.Errorf("reference to itself")
	}
	var r *container.ReferenceResolver
	if id == "" || container.IsTypeID(id) {
		r = container.NewRef(target)
	} else {
		r = container.NewNamedRef(target)
	}
	return r, applyOptions(l, r, opts)
}

func (l *Loader) global(name string) (container.Resolver, error) {
	ptr, ok := l.globals[name]
	if !ok {
		return nil, fmt.Errorf("undefined global %q", name)
	}
	return container.Var(ptr)
}

func (l *Loader) literals(list any) ([]any, error) {
	items, ok := list.([]any)
	if !ok {
		return nil, fmt.Errorf("args must be a list, got %T", list)
	}
	out := make([]any, len(items))
	for i, item := range items {
		res, err := l.decode("", item, literalMode)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}

// configurable is the fluent option surface shared by class, reference and
// wildcard resolvers.
type configurable[T any] interface {
	Shared(v bool) T
	Propagate(v bool) T
	Alias(from, to string) T
	AliasNil(from string) T
	Args(args ...any) T
	Call(method string, args ...any) T
	Err() error
}

func applyOptions[T configurable[T]](l *Loader, r T, opts map[string]any) error {
	for _, key := range sortedKeys(opts) {
		v := opts[key]
		switch key {
		case "shared", "propagate":
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("%s must be a boolean, got %T", key, v)
			}
			if key == "shared" {
				r.Shared(b)
			} else {
				r.Propagate(b)
			}
		case "alias":
			m, ok := v.(map[string]any)
			if !ok {
				return fmt.Errorf("alias must be a map, got %T", v)
			}
			for _, from := range sortedKeys(m) {
				switch to := m[from].(type) {
				case nil:
					r.AliasNil(from)
				case string:
					r.Alias(from, to)
				default:
					return fmt.Errorf("alias %q must name an identifier, got %T", from, to)
				}
			}
		case "args":
			args, err := l.literals(v)
			if err != nil {
				return err
			}
			r.Args(args...)
		case "call":
			if err := applyCalls(l, r, v); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown option %q", key)
		}
	}
	return r.Err()
}

func applyCalls[T configurable[T]](l *Loader, r T, v any) error {
	calls, ok := v.([]any)
	if !ok {
		return fmt.Errorf("call must be a list, got %T", v)
	}
	for i, c := range calls {
		switch x := c.(type) {
		case string:
			r.Call(x)
		case map[string]any:
			method, ok := x["method"].(string)
			if !ok || method == "" {
				return fmt.Errorf("call[%d] needs a method", i)
			}
			var args []any
			if raw, ok := x["args"]; ok {
				var err error
				if args, err = l.literals(raw); err != nil {
					return fmt.Errorf("call[%d]: %w", i, err)
				}
			}
			r.Call(method, args...)
		default:
			return fmt.Errorf("call[%d] must be a method name or a map, got %T", i, c)
		}
	}
	return nil
}

func optionMap(v any) (map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return x, nil
	}
	return nil, fmt.Errorf("expected a map of options, got %T", v)
}

func nameArg(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case map[string]any:
		if name, ok := x["name"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("expected a name, got %v", v)
}

func without(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// normalizeNumbers turns decoded JSON numbers into int when they are whole,
// float64 otherwise.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			x[k] = normalizeNumbers(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = normalizeNumbers(item)
		}
		return x
	case interface {
		Int64() (int64, error)
		Float64() (float64, error)
	}:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
		f, _ := x.Float64()
		return f
	}
	return v
}
