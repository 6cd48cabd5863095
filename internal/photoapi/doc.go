// Package photoapi is a client for the photo-sharing REST API.
//
// Requests are authorized with the bearer token held in a token store. A
// request made without a stored token fails with ErrUnauthorized before
// anything is sent. Every failure is reported as one of the errors declared
// in this package:
//
//	ErrInvalidRequest  request could not be built
//	ErrUnauthorized    no token present
//	*StatusError       non-2xx response
//	ErrDecoding        response body did not decode
//	ErrTransport       network failure
//	ErrCanceled        request cancelled or superseded
//
// Response bodies use snake_case JSON field names.
package photoapi
