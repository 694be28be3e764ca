package domain

import (
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
)

// Role is a principal's authority level.
type Role string

const (
	RoleServer Role = "SERVER"
	RoleAdmin  Role = "ADMIN"
	RoleStaff  Role = "STAFF"
	RoleUser   Role = "USER"
)

var roleWeights = map[Role]int{
	RoleServer: 1000,
	RoleAdmin:  100,
	RoleStaff:  50,
	RoleUser:   10,
}

// Weight returns the role's position in the total role order. Unknown roles weigh 0.
func (r Role) Weight() int {
	return roleWeights[r]
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleWeights[r]
	return ok
}

// Dominates reports whether r may observe everything other may observe.
func (r Role) Dominates(other Role) bool {
	return r.Weight() >= other.Weight()
}

// ParseRole converts a string to a known Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidRole, s)
	}
	return r, nil
}

// Principal is the authenticated caller as supplied by the authentication layer.
type Principal struct {
	ID   string
	Role Role
}

// ChannelKind is the audience class of a logical channel.
type ChannelKind string

const (
	ChannelPublic ChannelKind = "public"
	ChannelStaff  ChannelKind = "staff"
	ChannelAdmin  ChannelKind = "admin"
	ChannelUser   ChannelKind = "user"
)

const (
	publicChannelName = "public-message"
	staffChannelName  = "staff-message"
	adminChannelName  = "admin-message"
	userChannelPrefix = "user-message-"
	maxUserIDLength   = 64
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Channel is a computed audience identifier. The zero value is invalid.
type Channel struct {
	kind   ChannelKind
	userID string
}

// PublicChannel returns the channel every principal may observe.
func PublicChannel() Channel { return Channel{kind: ChannelPublic} }

// StaffChannel returns the staff group channel.
func StaffChannel() Channel { return Channel{kind: ChannelStaff} }

// AdminChannel returns the admin group channel.
func AdminChannel() Channel { return Channel{kind: ChannelAdmin} }

// UserChannel returns the private channel of a single user.
func UserChannel(userID string) (Channel, error) {
	if err := ValidateUserID(userID); err != nil {
		return Channel{}, err
	}
	return Channel{kind: ChannelUser, userID: userID}, nil
}

// ValidateUserID checks that a user ID can be embedded in a channel name.
func ValidateUserID(userID string) error {
	if userID == "" || len(userID) > maxUserIDLength || !userIDPattern.MatchString(userID) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidUserID, userID)
	}
	return nil
}

// ParseChannel converts a wire channel name into a Channel.
func ParseChannel(name string) (Channel, error) {
	switch name {
	case publicChannelName:
		return PublicChannel(), nil
	case staffChannelName:
		return StaffChannel(), nil
	case adminChannelName:
		return AdminChannel(), nil
	}

	if id, ok := strings.CutPrefix(name, userChannelPrefix); ok {
		ch, err := UserChannel(id)
		if err != nil {
			return Channel{}, fmt.Errorf("%w: %q", apperrors.ErrMalformedChannel, name)
		}
		return ch, nil
	}

	return Channel{}, fmt.Errorf("%w: %q", apperrors.ErrMalformedChannel, name)
}

// Kind returns the channel's audience class.
func (c Channel) Kind() ChannelKind { return c.kind }

// UserID returns the owning user for user channels and "" otherwise.
func (c Channel) UserID() string { return c.userID }

// IsZero reports whether c was never constructed.
func (c Channel) IsZero() bool { return c.kind == "" }

// Name returns the wire name of the channel.
func (c Channel) Name() string {
	switch c.kind {
	case ChannelPublic:
		return publicChannelName
	case ChannelStaff:
		return staffChannelName
	case ChannelAdmin:
		return adminChannelName
	case ChannelUser:
		return userChannelPrefix + c.userID
	default:
		return ""
	}
}

func (c Channel) String() string { return c.Name() }

// MinRole is the lowest role allowed to subscribe to a group channel.
// User channels are authorized by identity instead.
func (c Channel) MinRole() Role {
	switch c.kind {
	case ChannelStaff:
		return RoleStaff
	case ChannelAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) {
	if c.IsZero() {
		return nil, fmt.Errorf("%w: empty channel", apperrors.ErrMalformedChannel)
	}
	return []byte(c.Name()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(text []byte) error {
	ch, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = ch
	return nil
}
