// Package testutil contains builders used across tests to construct sessions,
// observer events and agent outputs with little boilerplate. They are not
// intended for production usage.
package testutil
