package mission

// Standing is the lifecycle position of an identity. StandingNone stands for
// "no record yet"; it is never persisted.
type Standing int

const (
	// StandingNone means no mission has been issued.
	StandingNone Standing = iota
	// StandingActive means a mission exists and may be viewed again.
	StandingActive
	// StandingRejected means the mission was rejected and issuance is barred.
	StandingRejected
)

// String returns the wire name of the standing.
func (s Standing) String() string {
	switch s {
	case StandingActive:
		return "active"
	case StandingRejected:
		return "rejected"
	default:
		return "none"
	}
}
