package event

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// validator owns one cue.Context with schema.cue compiled into it and the
// definitions looked up so far. A cue.Context is not safe for concurrent
// use, so a validator is held by one goroutine at a time.
type validator struct {
	ctx  *cue.Context
	root cue.Value
	defs map[Name]cue.Value
}

func newValidator() (*validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile event schemas: %w", err)
	}
	return &validator{ctx: ctx, root: root, defs: make(map[Name]cue.Value)}, nil
}

func (v *validator) def(name Name) (cue.Value, bool) {
	if d, ok := v.defs[name]; ok {
		return d, true
	}
	d := v.root.LookupPath(cue.ParsePath(string(name)))
	if !d.Exists() {
		return cue.Value{}, false
	}
	v.defs[name] = d
	return d, true
}

func (v *validator) validate(name Name, content []byte) error {
	def, ok := v.def(name)
	if !ok {
		return fmt.Errorf("no schema for %q", name)
	}

	data := v.ctx.CompileBytes(content, cue.Filename(string(name)+".json"))
	if err := data.Err(); err != nil {
		return fmt.Errorf("content of %s is not valid JSON: %s", name, cueerrors.Details(err, nil))
	}

	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("content of %s: %s", name, cueerrors.Details(err, nil))
	}
	return nil
}

var (
	schemaOnce sync.Once
	schemaErr  error
	validators sync.Pool
)

// acquire returns an idle validator, compiling a new one when none is
// free. The first call reports a schema that does not compile.
func acquire() (*validator, error) {
	schemaOnce.Do(func() {
		v, err := newValidator()
		if err != nil {
			schemaErr = err
			return
		}
		validators.Put(v)
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	if v, ok := validators.Get().(*validator); ok {
		return v, nil
	}
	return newValidator()
}

// ValidateContent checks that content has the shape required for name.
// It is safe for concurrent use.
func ValidateContent(name Name, content []byte) error {
	v, err := acquire()
	if err != nil {
		return err
	}
	defer validators.Put(v)
	return v.validate(name, content)
}
