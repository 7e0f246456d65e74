// Package api handles incoming HTTP requests, request validation and response
// formatting for the batch image service. It adapts HTTP to the
// service.BatchService operations and streams session progress over
// websockets.
package api
