// Package events carries session progress notifications from the session
// registry to live observers such as the websocket progress stream.
//
// Publishing is fire-and-forget so that the many tasks updating a session
// never wait on a slow observer; observers that fall behind lose events and
// can resynchronize from a status snapshot.
package events
