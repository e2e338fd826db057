package revision

import "time"

// Revision links a superseded BOQ to the draft copy that replaces it.
type Revision struct {
	Id            int
	OriginalBoqId int
	NewBoqId      int
	Reason        string
	RequestedById int
	CreatedAt     time.Time
}
