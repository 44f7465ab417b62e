// Package main is the flag-driven entry point for the Aurora Gateway server.
//
// Configuration comes from the environment (a .env file is read first),
// then flags override it:
//
//	./server -port 8000 -relay corsproxy -relays relays.yaml
//
//	# Development mode (colored logs)
//	./server -dev
//
// SIGINT and SIGTERM drain in-flight requests and tab loads before exit.
package main
