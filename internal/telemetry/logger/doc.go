// Package logger configures log/slog for KeyDesk.
//
// Every logger shares one level variable, so the config watcher and the
// control socket can change verbosity at runtime. Records logged with a
// context pick up the request_id and invocation_id stored in it.
//
// Attributes named key, key_id or candidate are masked to their first
// four characters. Attributes whose name mentions a secret, token,
// password or credential are replaced outright.
package logger
