package expr

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"

	"mercator-hq/ascent/pkg/expr/ast"
	"mercator-hq/ascent/pkg/expr/parser"
	"mercator-hq/ascent/pkg/expr/validator"
)

// Config configures an Evaluator.
type Config struct {
	// CacheSize is the number of compiled programs kept in memory.
	// Zero disables caching.
	CacheSize int
}

// DefaultConfig returns the configuration used by the package-level helpers.
func DefaultConfig() Config {
	return Config{CacheSize: 256}
}

// Program is a parsed expression whose identifiers are all whitelisted.
type Program struct {
	Source string
	root   ast.Node

	// typeErr is the result of the static type pass, kept so a cached
	// program never needs to be checked twice.
	typeErr error
}

// Root returns the syntax tree.
func (p *Program) Root() ast.Node { return p.root }

// Variables returns the distinct variable names the program references.
func (p *Program) Variables() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, name := range ast.Identifiers(p.root) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Eval runs the program against env. A program that failed the type pass
// never runs; the type error is reported as a runtime failure instead, so
// short-circuiting cannot hide it.
func (p *Program) Eval(env Env) (bool, error) {
	if p.typeErr != nil {
		return false, asRuntime(p.typeErr)
	}
	return run(p.root, env)
}

// Evaluator validates, compiles and evaluates condition expressions.
// It is safe for concurrent use.
type Evaluator struct {
	validator *validator.Validator

	mu    sync.Mutex
	cache *lru.Cache
}

// NewEvaluator creates an evaluator bound to the metric whitelist.
func NewEvaluator(cfg Config) *Evaluator {
	e := &Evaluator{validator: validator.New(Variables)}
	if cfg.CacheSize > 0 {
		e.cache = lru.New(cfg.CacheSize)
	}
	return e
}

// Validate checks that expression is a well-formed boolean condition over
// whitelisted variables. The returned error is suitable to show to a rule
// author as is.
func (e *Evaluator) Validate(expression string) error {
	_, err := e.Compile(expression)
	return err
}

// Compile parses expression and runs the variable and type passes.
func (e *Evaluator) Compile(expression string) (*Program, error) {
	prog, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	if prog.typeErr != nil {
		return nil, prog.typeErr
	}
	return prog, nil
}

// compile returns a cached or freshly parsed program. Programs that fail
// the type pass are returned too, carrying the error.
func (e *Evaluator) compile(expression string) (*Program, error) {
	key := strings.TrimSpace(expression)
	if prog, ok := e.lookup(key); ok {
		return prog, nil
	}

	root, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	if err := e.validator.CheckVariables(root); err != nil {
		return nil, err
	}

	prog := &Program{Source: key, root: root, typeErr: validator.CheckTypes(root)}
	e.store(key, prog)
	return prog, nil
}

// Evaluate compiles expression and runs it against env. Operand type
// mismatches are runtime failures here, not syntax errors.
func (e *Evaluator) Evaluate(expression string, env Env) (bool, error) {
	prog, err := e.compile(expression)
	if err != nil {
		return false, err
	}
	return prog.Eval(env)
}

// CacheLen returns the number of cached programs.
func (e *Evaluator) CacheLen() int {
	if e.cache == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Len()
}

func (e *Evaluator) lookup(key string) (*Program, bool) {
	if e.cache == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Program), true
}

func (e *Evaluator) store(key string, prog *Program) {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.Add(key, prog)
}

var defaultEvaluator = NewEvaluator(DefaultConfig())

// Validate validates expression with a shared default evaluator.
func Validate(expression string) error {
	return defaultEvaluator.Validate(expression)
}

// Evaluate evaluates expression with a shared default evaluator.
func Evaluate(expression string, env Env) (bool, error) {
	return defaultEvaluator.Evaluate(expression, env)
}
