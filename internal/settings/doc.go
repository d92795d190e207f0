// Package settings persists small key/value settings in SQLite.
//
// The remote access credential lives under KeyAccessToken. Older
// installations stored it inside a JSON blob under KeyLegacyAccount;
// MigrateLegacyCredential moves it across once and removes the blob.
//
// Store satisfies session.CredentialStore.
package settings
