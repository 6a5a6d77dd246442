// Package audit records who changed what.
//
// Services build an Entry after their transaction commits and hand it to a
// Recorder, which stamps it (timestamp, request ID) and fans it out to one or
// more Sinks. Sink failures are logged and counted, never returned. SQLStore
// is the durable sink and the only way entries are read back; Export renders
// a listing as JSON, NDJSON or CSV.
package audit
