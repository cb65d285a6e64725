// Package roster binds the built-in agent kinds to coordinator factories.
package roster
