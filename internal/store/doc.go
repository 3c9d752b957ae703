// Package store is the gorm-backed user store for ldapauth. It owns the User
// model, the registry of attributes directory values can be mapped onto, and
// record validation.
package store
