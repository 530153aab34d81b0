// Package server hosts the Fiber HTTP front of the image cache: the request-id
// middleware, the per-namespace image route and the Prometheus endpoint.
// NamespaceRegistry owns one Store/AssetCache/Coordinator triple per configured
// namespace and is the only place where those components are constructed, so
// the CLI and tests share the same wiring.
package server
