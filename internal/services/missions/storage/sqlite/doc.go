// Package sqlite provides the SQLite-backed mission store and student directory.
package sqlite
