// Package tokenstore provides persistent storage for the bearer token of the
// signed-in user.
//
// Exactly zero or one token is stored at any time. Supported backends:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Memory: Process-local storage for tests and ephemeral sessions
//
// Every backend reports a missing token as ErrNotFound and treats Clear on an
// empty store as a no-op, so logging out twice is safe.
package tokenstore
