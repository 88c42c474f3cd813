// Package application provides application initialization and dependency wiring.
// It resolves the runtime config before anything else, then creates the METAR
// client, renderer, session store, handlers, router and HTTP server, keeping
// the main package focused on CLI parsing and orchestration.
package application
