package config

import (
	"fmt"
	"os"
)

const (
	ResolverIdentity    = "identity"
	ResolverEnvironment = "environment"

	EnvInstance = "STASH_INSTANCE"
	EnvDatabase = "STASH_DATABASE"
	EnvConfig   = "STASH_CONFIG"
)

// Resolver is given the chance to rewrite the names used to select a
// database, and the path of the configuration file, before either is used.
type Resolver interface {
	ResolveNames(instance string, database string) (string, string)
	ResolveConfigPath(path string) string
}

// IdentityResolver leaves everything exactly as provided.
type IdentityResolver struct{}

func (IdentityResolver) ResolveNames(instance string, database string) (string, string) {
	return instance, database
}

func (IdentityResolver) ResolveConfigPath(path string) string { return path }

// EnvironmentResolver allows the instance, database name and config path
// to be overridden by the STASH_INSTANCE, STASH_DATABASE and STASH_CONFIG
// environment variables respectively. Unset (or empty) variables leave the
// provided value untouched.
type EnvironmentResolver struct {
	// Lookup defaults to os.LookupEnv
	Lookup func(string) (string, bool)
}

func (r EnvironmentResolver) ResolveNames(instance string, database string) (string, string) {
	return r.lookup(EnvInstance, instance), r.lookup(EnvDatabase, database)
}

func (r EnvironmentResolver) ResolveConfigPath(path string) string {
	return r.lookup(EnvConfig, path)
}

func (r EnvironmentResolver) lookup(key string, fallback string) string {
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

// NewResolver returns the resolver with the name given.
func NewResolver(name string) (Resolver, error) {
	switch name {
	case "", ResolverIdentity:
		return IdentityResolver{}, nil
	case ResolverEnvironment:
		return EnvironmentResolver{}, nil
	default:
		return nil, fmt.Errorf("unknown resolver '%s' (expected %s or %s)", name, ResolverIdentity, ResolverEnvironment)
	}
}
