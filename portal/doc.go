// Package portal implements the shared transport for the GIS portal REST
// API: parameter building, token authentication, JSON and binary decoding,
// and the content (item) endpoints.
//
// A Client is safe for concurrent use. Service-level wrappers (mapping,
// features, geoprocessing) build their requests on top of it.
package portal
