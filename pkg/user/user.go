package user

// User is an acting identity. Ledger entries and approval stamps are
// attributed to a user id.
type User struct {
	Id          int
	Uid         string
	Username    string
	DisplayName string
}
