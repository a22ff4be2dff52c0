// Package fastcgi implements the FastCGI/1.0 wire protocol as a sans-I/O
// state machine: it parses and produces the byte stream spoken between a
// web server and an application process, but performs no network, file, or
// thread work of its own.
//
// A Connection accepts inbound bytes via FeedData, returns application
// events, accepts outbound responses via SendHeaders/SendData/EndRequest,
// and hands the resulting bytes back via DataToSend. The caller owns all
// I/O and all concurrency; a Connection must not be used from more than one
// goroutine at a time.
package fastcgi
