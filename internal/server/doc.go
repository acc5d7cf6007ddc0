// Package server hosts the Fiber HTTP service: request-id middleware, the
// catch-all route that feeds every site request into the dispatch chain, and
// the shared upstream HTTP client. Administrative and diagnostics endpoints
// live under the reserved "/-/" prefix and are mounted by the routes
// subpackage; they never enter the dispatch chain, so content negotiation
// cannot touch them. Keep exports narrow and accept explicit dependencies.
package server
