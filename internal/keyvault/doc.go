// Package keyvault stores user API keys encrypted at rest.
//
// Keys are sealed with AES-256-GCM under a master key derived from the
// configured secret via HKDF-SHA256. The ciphertext, IV and GCM tag are
// kept as separate base64 fields on the record, with a version tag for
// future format changes.
//
// Lookups go through a TTL cache: decrypted values live five minutes,
// confirmed absences sixty seconds. A record that fails to decrypt is
// treated as absent so a rotated master secret degrades to the process
// default key instead of failing turns.
package keyvault
