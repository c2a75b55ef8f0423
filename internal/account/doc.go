// Package account implements the tunnel user lifecycle: create, update
// and delete operations that keep the JSON user document and the mirrored
// system logins consistent.
//
// There is no transaction spanning the two stores, so create runs as a
// saga: the document is saved first, then the system login is
// provisioned, and a provisioning failure triggers a compensating removal
// of the just-saved record. Delete is intentionally asymmetric: the
// document removal is authoritative and a failed system-login removal is
// only logged, because a lingering OS account is less dangerous than a
// phantom tunnel user.
//
// A single document-level mutex serializes every load-modify-save cycle;
// the on-disk save is a full-document overwrite, so unserialized writers
// would lose updates even for different usernames.
package account
