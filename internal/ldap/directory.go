package ldap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/isometry/ldapauth/internal/auth"
	"github.com/isometry/ldapauth/internal/logging"
)

// DirectoryConfig describes where users and groups live in the directory.
type DirectoryConfig struct {
	// BaseDN is the search base for user entries.
	BaseDN string

	// LoginAttribute holds the login value on user entries (default "mail").
	LoginAttribute string

	// UserFilter is ANDed with the login match, e.g. "(objectClass=person)".
	UserFilter string

	// DirectBind derives user DNs as LoginAttribute=<login>,BaseDN instead of
	// searching for them. Used when no service account is configured.
	DirectBind bool

	// GroupBaseDN is the search base for groups (default BaseDN).
	GroupBaseDN string

	// GroupMemberAttribute lists member DNs on group entries (default "member").
	GroupMemberAttribute string

	// RequiredGroup, when set, is the DN of a group a user must belong to.
	RequiredGroup string

	// PasswordMethod selects how UpdatePassword writes to the directory.
	PasswordMethod PasswordMethod

	// Attributes limits the attributes fetched by Entry. Empty fetches all.
	Attributes []string

	// SearchTimeout bounds each search on the server side.
	SearchTimeout time.Duration
}

// Directory implements auth.Directory on top of a Client.
type Directory struct {
	client Client
	config DirectoryConfig
	logger logging.Logger
}

// NewDirectory validates config, applies defaults and returns a Directory.
func NewDirectory(client Client, config DirectoryConfig, logger logging.Logger) (*Directory, error) {
	if client == nil {
		return nil, errors.New("directory client is required")
	}
	if config.BaseDN == "" {
		return nil, errors.New("base DN is required")
	}
	if _, err := ldap.ParseDN(config.BaseDN); err != nil {
		return nil, fmt.Errorf("invalid base DN %q: %w", config.BaseDN, err)
	}
	if config.LoginAttribute == "" {
		config.LoginAttribute = "mail"
	}
	if config.GroupBaseDN == "" {
		config.GroupBaseDN = config.BaseDN
	}
	if config.GroupMemberAttribute == "" {
		config.GroupMemberAttribute = "member"
	}
	if config.PasswordMethod == "" {
		config.PasswordMethod = PasswordMethodExop
	}
	if !config.PasswordMethod.Valid() {
		return nil, fmt.Errorf("unsupported password method %q", config.PasswordMethod)
	}
	if config.UserFilter != "" {
		if _, err := ldap.CompileFilter(config.UserFilter); err != nil {
			return nil, fmt.Errorf("invalid user filter %q: %w", config.UserFilter, err)
		}
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	return &Directory{client: client, config: config, logger: logger}, nil
}

var _ auth.Directory = (*Directory)(nil)

// ValidCredentials binds as the user. Unknown logins, wrong passwords and
// users outside RequiredGroup are false with a nil error.
func (d *Directory) ValidCredentials(ctx context.Context, login, password string) (bool, error) {
	dn, err := d.resolveDN(ctx, login)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			d.logger.Debug("Login not found in directory", map[string]any{"login": login})
			return false, nil
		case errors.Is(err, ErrAmbiguousUser):
			d.logger.Warn("Login matches several directory entries", map[string]any{"login": login})
			return false, nil
		}
		return false, err
	}

	if err := d.client.BindAs(ctx, dn, password); err != nil {
		if IsAuthenticationError(err) {
			d.logger.Debug("Directory rejected credentials", map[string]any{"dn": dn})
			return false, nil
		}
		return false, err
	}

	if d.config.RequiredGroup == "" {
		return true, nil
	}

	member, err := d.isMember(ctx, dn, password, d.config.RequiredGroup)
	if err != nil {
		return false, err
	}
	if !member {
		d.logger.Info("User is not a member of the required group", map[string]any{
			"dn":    dn,
			"group": d.config.RequiredGroup,
		})
	}
	return member, nil
}

// Entry reads the user's own entry while bound as the user.
func (d *Directory) Entry(ctx context.Context, login, password string) (auth.Entry, error) {
	dn, err := d.resolveDN(ctx, login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrAmbiguousUser) {
			return nil, fmt.Errorf("%w: %w", auth.ErrEntryNotFound, err)
		}
		return nil, err
	}

	result, err := d.client.SearchAs(ctx, dn, password, &SearchRequest{
		BaseDN:     dn,
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: d.config.Attributes,
		SizeLimit:  1,
		TimeLimit:  d.config.SearchTimeout,
	})
	switch {
	case err == nil:
	case IsAuthenticationError(err):
		return nil, fmt.Errorf("%w: %w", auth.ErrInvalidCredentials, err)
	case IsNotFoundError(err):
		return nil, fmt.Errorf("%w: %w", auth.ErrEntryNotFound, err)
	default:
		return nil, err
	}

	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", auth.ErrEntryNotFound, dn)
	}
	return auth.Entry(DecodeEntry(result.Entries[0])), nil
}

// UpdatePassword writes newPassword for login with the service account.
func (d *Directory) UpdatePassword(ctx context.Context, login, newPassword string) error {
	dn, err := d.resolveDN(ctx, login)
	if err != nil {
		return err
	}

	switch d.config.PasswordMethod {
	case PasswordMethodAD:
		encoded, err := EncodeADPassword(newPassword)
		if err != nil {
			return err
		}
		return d.client.Modify(ctx, &ModifyRequest{
			DN:                dn,
			ReplaceAttributes: map[string][]string{"unicodePwd": {encoded}},
		})
	default:
		return d.client.PasswordModify(ctx, dn, newPassword)
	}
}

// Attribute returns the values of name on the user's entry, nil when absent.
func (d *Directory) Attribute(ctx context.Context, login, name string) ([]string, error) {
	entry, err := d.findUser(ctx, login, []string{name})
	if err != nil {
		return nil, err
	}
	values, _ := auth.Entry(DecodeEntry(entry)).Get(name)
	return values, nil
}

// Groups returns the DNs of groups under GroupBaseDN listing the user as a member.
func (d *Directory) Groups(ctx context.Context, login string) ([]string, error) {
	dn, err := d.resolveDN(ctx, login)
	if err != nil {
		return nil, err
	}

	result, err := d.client.Search(ctx, &SearchRequest{
		BaseDN:     d.config.GroupBaseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     fmt.Sprintf("(%s=%s)", d.config.GroupMemberAttribute, ldap.EscapeFilter(dn)),
		Attributes: []string{"1.1"},
		TimeLimit:  d.config.SearchTimeout,
	})
	if err != nil {
		return nil, err
	}

	groups := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		groups = append(groups, entry.DN)
	}
	return groups, nil
}

// DN returns the distinguished name of login.
func (d *Directory) DN(ctx context.Context, login string) (string, error) {
	return d.resolveDN(ctx, login)
}

// resolveDN maps a login to a DN, either directly or with a service search.
func (d *Directory) resolveDN(ctx context.Context, login string) (string, error) {
	if d.config.DirectBind {
		return UserDN(d.config.LoginAttribute, login, d.config.BaseDN), nil
	}

	entry, err := d.findUser(ctx, login, []string{"1.1"})
	if err != nil {
		return "", err
	}
	return entry.DN, nil
}

// findUser returns the single entry matching login.
func (d *Directory) findUser(ctx context.Context, login string, attributes []string) (*ldap.Entry, error) {
	if login == "" {
		return nil, ErrUserNotFound
	}

	req := &SearchRequest{
		BaseDN:     d.config.BaseDN,
		Scope:      ScopeWholeSubtree,
		Filter:     d.userFilter(login),
		Attributes: attributes,
		SizeLimit:  2,
		TimeLimit:  d.config.SearchTimeout,
	}
	if d.config.DirectBind {
		req.BaseDN = UserDN(d.config.LoginAttribute, login, d.config.BaseDN)
		req.Scope = ScopeBaseObject
	}

	result, err := d.client.Search(ctx, req)
	switch {
	case err == nil:
	case IsSizeLimitError(err):
		// SizeLimit 2 stops the server at the second match.
		return nil, fmt.Errorf("%s: %w", login, ErrAmbiguousUser)
	case d.config.DirectBind && IsNotFoundError(err):
		return nil, fmt.Errorf("%s: %w", login, ErrUserNotFound)
	case IsNotFoundError(err):
		return nil, fmt.Errorf("searching %s: %w", d.config.BaseDN, err)
	default:
		return nil, err
	}

	switch len(result.Entries) {
	case 0:
		return nil, fmt.Errorf("%s: %w", login, ErrUserNotFound)
	case 1:
		return result.Entries[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", login, ErrAmbiguousUser)
	}
}

func (d *Directory) userFilter(login string) string {
	match := fmt.Sprintf("(%s=%s)", d.config.LoginAttribute, ldap.EscapeFilter(login))
	if d.config.UserFilter == "" {
		return match
	}
	return "(&" + match + d.config.UserFilter + ")"
}

// isMember checks group membership while bound as the user.
func (d *Directory) isMember(ctx context.Context, dn, password, group string) (bool, error) {
	result, err := d.client.SearchAs(ctx, dn, password, &SearchRequest{
		BaseDN:     group,
		Scope:      ScopeBaseObject,
		Filter:     fmt.Sprintf("(%s=%s)", d.config.GroupMemberAttribute, ldap.EscapeFilter(dn)),
		Attributes: []string{"1.1"},
		TimeLimit:  d.config.SearchTimeout,
	})
	if err != nil {
		if IsNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return len(result.Entries) > 0, nil
}
