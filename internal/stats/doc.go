// Package stats reads the statistics database maintained by the tunnel
// service and appends console security events to it.
//
// The tunnel process owns the user_stats, global_stats and connection_log
// tables; the console only reads them. The security_log table is shared:
// both the tunnel and the console append to it.
package stats
