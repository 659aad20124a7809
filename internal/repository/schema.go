package repository // table and column mapping

import (
	"fmt"     // formatted errors and strings
	"regexp"  // identifier checks
	"strings" // string manipulation utilities
)

// Schema maps the account fields onto table and column names.  IsActive and
// CreatedAt may be empty for tables that do not carry them.
type Schema struct {
	Table        string
	Username     string
	PasswordHash string
	RefreshToken string
	IsActive     string
	CreatedAt    string
}

// DefaultSchema is the table created by the embedded migrations.
var DefaultSchema = Schema{
	Table:        "user_accounts",
	Username:     "username",
	PasswordHash: "password_hash",
	RefreshToken: "refresh_token",
	IsActive:     "is_active",
	CreatedAt:    "registered_at",
}

// LegacySchema is the minimal table with only credentials and the token.
var LegacySchema = Schema{
	Table:        "UserTest",
	Username:     "Username",
	PasswordHash: "PasswordHash",
	RefreshToken: "RefreshToken",
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SchemaByName resolves the ACCOUNT_SCHEMA setting.
func SchemaByName(name string) (Schema, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return DefaultSchema, nil
	case "legacy":
		return LegacySchema, nil
	}
	return Schema{}, fmt.Errorf("%w: unknown schema %q", ErrInvalidSchema, name)
}

// Validate checks that every identifier is a plain SQL name.  Values are
// always bound as parameters, but identifiers cannot be, so they are
// restricted here instead.
func (s Schema) Validate() error {
	required := map[string]string{
		"table":         s.Table,
		"username":      s.Username,
		"password_hash": s.PasswordHash,
		"refresh_token": s.RefreshToken,
	}
	for field, ident := range required {
		if !identRe.MatchString(ident) {
			return fmt.Errorf("%w: %s %q", ErrInvalidSchema, field, ident)
		}
	}
	for field, ident := range map[string]string{"is_active": s.IsActive, "created_at": s.CreatedAt} {
		if ident != "" && !identRe.MatchString(ident) {
			return fmt.Errorf("%w: %s %q", ErrInvalidSchema, field, ident)
		}
	}
	return nil
}

// selectList aliases the mapped columns onto the model.Account db tags.
func (s Schema) selectList() string {
	cols := []string{
		s.Username + " AS username",
		s.PasswordHash + " AS password_hash",
		s.RefreshToken + " AS refresh_token",
	}
	if s.IsActive != "" {
		cols = append(cols, s.IsActive+" AS is_active")
	}
	if s.CreatedAt != "" {
		cols = append(cols, s.CreatedAt+" AS created_at")
	}
	return strings.Join(cols, ", ")
}
