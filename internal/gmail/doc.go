// Package gmail provides a thin client over the Gmail API for a single
// linked mailbox. Clients are built per request from the access token the
// token provider hands out, so a stale token never outlives the call that
// used it.
package gmail
