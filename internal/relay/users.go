package relay

import (
	"strings"
	"sync"
	"unicode"

	"github.com/kshaa/racer/internal/ids"
)

const maxUsernameLength = 30

// User is a registered player: an opaque identity plus the bearer
// ticket handed back once at registration time.
type User struct {
	ID       ids.PlayerId
	Username string
	Ticket   ids.Ticket
}

// Users is the registry of every registered player, keyed both by id
// and by username for the uniqueness check. It is a logically-exclusive
// resource: every mutation holds the lock for its whole duration.
type Users struct {
	mu        sync.Mutex
	byID      map[ids.PlayerId]User
	byName    map[string]ids.PlayerId
}

func NewUsers() *Users {
	return &Users{
		byID:   make(map[ids.PlayerId]User),
		byName: make(map[string]ids.PlayerId),
	}
}

func isAlphanumericOrSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Add registers username and returns the new User, or an AppError if
// the name is too long, not alphanumeric-or-space, or already taken.
// Checks fire in this order: length, then character class, then
// uniqueness.
func (u *Users) Add(username string) (User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	trimmed := strings.TrimSpace(username)

	if len(username) > maxUsernameLength {
		return User{}, errTooLongUsername(maxUsernameLength, username)
	}

	if !isAlphanumericOrSpace(username) {
		return User{}, errNotAlphanumericUsername(username)
	}

	if _, taken := u.byName[trimmed]; taken {
		return User{}, errUsernameAlreadyExists(username)
	}

	id := ids.NewPlayerId()
	ticket, err := ids.NewTicket()
	if err != nil {
		return User{}, newAppError(TagInternal, "failed to generate ticket: %v", err)
	}

	if _, exists := u.byID[id]; exists {
		return User{}, errUserAlreadyExists(id)
	}

	user := User{ID: id, Username: username, Ticket: ticket}
	u.byID[id] = user
	u.byName[trimmed] = id

	return user, nil
}

// Authenticate reports whether pid is registered and ticket matches
// exactly. It never distinguishes "no such id" from "wrong ticket" to
// the caller, so 401 responses can't be used to enumerate valid ids.
func (u *Users) Authenticate(pid ids.PlayerId, ticket ids.Ticket) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	user, ok := u.byID[pid]
	return ok && user.Ticket == ticket
}

// Lookup returns the registered user for pid, if any.
func (u *Users) Lookup(pid ids.PlayerId) (User, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byID[pid]
	return user, ok
}
