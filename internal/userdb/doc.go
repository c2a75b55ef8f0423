// Package userdb provides persistent storage for GX Tunnel user accounts.
//
// Features:
//   - Single JSON document holding the ordered user list and console settings
//   - Atomic full-document saves (temp file + rename)
//   - Username validation against the system account pattern
//   - Derived account status (Active, Inactive, Expired, days-left)
//
// The store performs no locking of its own: callers own the
// load-modify-save cycle and must serialize it (see internal/account).
package userdb
