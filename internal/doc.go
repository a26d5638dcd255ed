// Package internal contains the core implementation packages for sectionloader.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the sectionloader CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - types: Columns, filters and queries shared by stores and tables
//   - registry: Table id to list-query mapping, validated once at startup
//   - scanner: Shortcode detection and rewriting across bracket encodings
//   - page: Document regions with change subscriptions and mount lookup
//   - watcher: Convergence detection for injected markup, file watching
//   - resolver: Scan, rewrite and build the tables of one region
//   - source: List stores (fixtures, HTTP, SQLite) and the section loader
//   - renderer: Table, page and Markdown rendering
//   - tabs: Tab group navigation over the resolved regions
//   - orchestrator: Parallel or sequential section runs with run reports
//   - app: Wiring of every component from a configuration
//   - server: Preview HTTP server with WebSocket live reload
//   - config, logging, errors, monitoring, version: ambient support
//
// # Inter-Package Communication
//
//   - The orchestrator drives a run: the section loader writes each region,
//     a convergence watcher waits for the markup, the resolver rewrites it
//   - Page regions notify subscribers on every change; the convergence
//     watcher and the preview server both listen
//   - Stores are reached only through the source.Store interface
//
// For detailed documentation, see the individual package documentation.
package internal
