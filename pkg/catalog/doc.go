// Package catalog loads and resolves the Category/Product/Plan hierarchy that
// drives sanity runs.
//
// The hierarchy is a YAML document of categories, each with products, each
// with plans. A Selection narrows it to a subset; Resolve expands a selection
// into a deterministic, sorted list of combinations to execute.
//
// Configs are validated on load with struct tags, and the Watcher keeps a
// long-running server in sync with on-disk edits via debounced fsnotify
// reloads. A config that fails validation never replaces a working catalog.
package catalog
