package store

import (
	"fmt"

	"github.com/isometry/ldapauth/internal/auth"
)

// userField is one attribute of User that directory values can be mapped to.
type userField struct {
	name string

	// column is set when the field may be used as a lookup key.
	column string

	field auth.Field
}

var userFields = []userField{
	{name: "email", column: "email", field: textField(func(u *User) *string { return &u.Email })},
	{name: "username", column: "username", field: optionalField(func(u *User) **string { return &u.Username })},
	{name: "full_name", field: textField(func(u *User) *string { return &u.FullName })},
	{name: "first_name", field: textField(func(u *User) *string { return &u.FirstName })},
	{name: "last_name", field: textField(func(u *User) *string { return &u.LastName })},
	{name: "phone", field: textField(func(u *User) *string { return &u.Phone })},
	{name: "title", field: textField(func(u *User) *string { return &u.Title })},
	{name: "department", field: textField(func(u *User) *string { return &u.Department })},
	{name: "dn", column: "dn", field: textField(func(u *User) *string { return &u.DN })},
	{name: "groups", field: listField(func(u *User) *[]string { return &u.Groups })},
	{name: "object_guid", column: "object_guid", field: textField(func(u *User) *string { return &u.ObjectGUID })},
	{name: "object_sid", column: "object_sid", field: textField(func(u *User) *string { return &u.ObjectSID })},
}

// IsLookupKey reports whether key names a field users can be found by.
func IsLookupKey(key string) bool {
	for _, f := range userFields {
		if f.name == key {
			return f.column != ""
		}
	}
	return false
}

// newFieldRegistry returns the field registry and the lookup column whitelist.
func newFieldRegistry() (*auth.Fields, map[string]string) {
	fields := auth.NewFields()
	columns := make(map[string]string)
	for _, f := range userFields {
		fields.Register(f.name, f.field)
		if f.column != "" {
			columns[f.name] = f.column
		}
	}
	return fields, columns
}

func asUser(rec auth.Record) (*User, error) {
	u, ok := rec.(*User)
	if !ok || u == nil {
		return nil, fmt.Errorf("unsupported record type %T", rec)
	}
	return u, nil
}

// textField maps the first directory value onto a string column.
func textField(at func(*User) *string) auth.Field {
	return auth.Field{
		Get: func(rec auth.Record) []string {
			u, err := asUser(rec)
			if err != nil || *at(u) == "" {
				return nil
			}
			return []string{*at(u)}
		},
		Set: func(rec auth.Record, values []string) error {
			u, err := asUser(rec)
			if err != nil {
				return err
			}
			*at(u) = first(values)
			return nil
		},
	}
}

// optionalField maps onto a nullable column; an empty value stores NULL.
func optionalField(at func(*User) **string) auth.Field {
	return auth.Field{
		Get: func(rec auth.Record) []string {
			u, err := asUser(rec)
			if err != nil || *at(u) == nil || **at(u) == "" {
				return nil
			}
			return []string{**at(u)}
		},
		Set: func(rec auth.Record, values []string) error {
			u, err := asUser(rec)
			if err != nil {
				return err
			}
			if v := first(values); v != "" {
				*at(u) = &v
			} else {
				*at(u) = nil
			}
			return nil
		},
	}
}

// listField keeps every directory value.
func listField(at func(*User) *[]string) auth.Field {
	return auth.Field{
		Get: func(rec auth.Record) []string {
			u, err := asUser(rec)
			if err != nil || len(*at(u)) == 0 {
				return nil
			}
			return append([]string(nil), *at(u)...)
		},
		Set: func(rec auth.Record, values []string) error {
			u, err := asUser(rec)
			if err != nil {
				return err
			}
			if len(values) == 0 {
				*at(u) = nil
			} else {
				*at(u) = append([]string(nil), values...)
			}
			return nil
		},
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
