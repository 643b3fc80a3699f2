// Package application manages the local application connections of the
// daemon.
//
// Each Connection is a router sink with a bounded outbound queue. The
// Manager records what a connection offers, requests and subscribes to,
// forwards those requests to the router and the SD client, and undoes all
// of it when the connection goes away.
//
// Manager methods and Connection.Forward run on the reactor loop. The
// Packets and Notices channels are read by the application's own
// goroutine.
package application
