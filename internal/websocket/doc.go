// Package websocket pushes live filter state to browser clients.
//
// Clients connect to /ws?session={id} and are grouped by session in a Hub.
// Every filter change made through the HTTP API or by another client is
// broadcast as a "filter:state" message to all clients of that session.
// Clients may send "selection:update", "selection:clear" and "heartbeat";
// rejected commands come back to the sender as an "error" message holding
// RFC 7807 problem details.
package websocket
