// Package middleware provides HTTP middleware for the media registry API.
//
// It includes:
//   - Request logging in W3C Extended Log Format, with the matched route
//   - Prometheus request metrics labelled by route template
//   - gzip compression of JSON responses
package middleware
