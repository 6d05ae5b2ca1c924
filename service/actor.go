package service

// Actor identifies who is asking for a settlement
type Actor struct {
	UserID int64
	System bool
}

// UserActor is a regular user
func UserActor(userID int64) Actor {
	return Actor{UserID: userID}
}

// SystemActor is the privileged actor used for automatic settlements.
// It may settle any wager.
func SystemActor() Actor {
	return Actor{System: true}
}

func (a Actor) settledBy() *int64 {
	if a.System {
		return nil
	}
	id := a.UserID
	return &id
}

func (a Actor) label() string {
	if a.System {
		return "system"
	}
	return "user"
}
