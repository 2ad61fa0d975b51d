// Package http contains the chi HTTP handlers for the upload, export,
// summary and health endpoints. Errors are rendered as RFC 7807 problem
// documents through the shared error handler.
package http
