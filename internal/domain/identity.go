package domain

// Identity is resolved once per connection and never changes afterwards.
// The zero value is Anonymous.
type Identity struct {
	UID UserID
}

var Anonymous = Identity{}

func Authenticated(uid UserID) Identity { return Identity{UID: uid} }

func (i Identity) IsAuthenticated() bool { return i.UID > 0 }

func (i Identity) String() string {
	if !i.IsAuthenticated() {
		return "anonymous"
	}
	return "uid:" + i.UID.String()
}
