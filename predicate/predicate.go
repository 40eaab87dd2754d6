// This package contains the integer predicates used by consumers and a registry to look them up
// by name.
package predicate

import (
	"slices"
	"strings"
)

// Func accepts or rejects a single item. Implementations must be pure.
type Func = func(n int) bool

func Even(n int) bool {
	return n%2 == 0
}

func Odd(n int) bool {
	return n%2 != 0
}

// Prime reports whether n is a prime number. Everything below 2 is not prime.
func Prime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for i := 3; i <= n/i; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

func Positive(n int) bool {
	return n > 0
}

func Negative(n int) bool {
	return n < 0
}

func Zero(n int) bool {
	return n == 0
}

// Any accepts everything.
func Any(int) bool {
	return true
}

// Not inverts f.
func Not(f Func) Func {
	return func(n int) bool {
		return !f(n)
	}
}

// Or accepts what any of fs accepts.
func Or(fs ...Func) Func {
	return func(n int) bool {
		for _, f := range fs {
			if f(n) {
				return true
			}
		}
		return false
	}
}

var registry = map[string]Func{
	"even":     Even,
	"odd":      Odd,
	"prime":    Prime,
	"positive": Positive,
	"negative": Negative,
	"zero":     Zero,
	"any":      Any,
}

// Lookup returns the predicate registered under name. Names are case-insensitive, and a "not-"
// prefix inverts the predicate, e.g. "not-prime".
func Lookup(name string) (Func, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if rest, ok := strings.CutPrefix(name, "not-"); ok {
		f, ok := registry[rest]
		if !ok {
			return nil, false
		}
		return Not(f), true
	}
	f, ok := registry[name]
	return f, ok
}

// Names returns the sorted names of all registered predicates.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
