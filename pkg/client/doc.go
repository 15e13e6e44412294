// Package client is the Go SDK for a vitalsguard server.
//
// It wraps the HTTP API: authentication, sensor upload and history, the
// trust ledger, consent and lockdown administration.
//
//	c := client.MustNew("http://localhost:8080")
//	if err := c.Login(ctx, "admin", password); err != nil {
//		return err
//	}
//	st, err := c.Status(ctx)
//
// A server that is locked down answers data requests with ErrSuspended.
package client
