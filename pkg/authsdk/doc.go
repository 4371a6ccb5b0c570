// Package authsdk provides the request/response types shared between the
// auth service's HTTP handlers and its Go client, plus a small SDK for
// calling the service from other backends.
package authsdk
