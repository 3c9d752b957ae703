/*
Package auth authenticates local user records against an LDAP directory.

A login is resolved in a fixed order:

  - the record is looked up by the configured authentication key
  - an unsaved record is provisioned when none exists and AutoCreateUser is set
  - the password is checked with a directory bind
  - on success the configured attributes are copied from the directory entry
    and the record is saved

Rejections are reported as a nil record with a nil error. Errors are reserved
for collaborator failures (*DirectoryError, *StoreError) so that a directory
outage is never mistaken for a wrong password.

Attribute synchronization is best effort. Unknown directory attributes,
unknown model attributes and failed saves are sent to the Sink as warnings and
never change the authentication result.
*/
package auth
