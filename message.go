package pongcoord

const (
	MessageNameSearch  = "search"
	MessageNameMatch   = "match"
	MessageNameQuery   = "query"
	MessageNameStatus  = "status"
	MessageNamePrepare = "prepare"
	MessageNameTokens  = "tokens"
)

// Message is one populated variant of the envelope shared by clients, backends and the coordinator.
type Message interface {
	MessageName() string
}

// Search is sent by a client that wants to be matched.
type Search struct{}

func (m *Search) MessageName() string {
	return MessageNameSearch
}

// Match hands a client its connection ticket.
type Match struct {
	Host   string
	Port   int
	Token  string
	Player Player
}

func (m *Match) MessageName() string {
	return MessageNameMatch
}

type Direction int

const (
	DirectionStop Direction = iota
	DirectionUp
	DirectionDown
)

// Player is the initial player state delivered with a match.
type Player struct {
	Seat            Seat
	PaddleDirection Direction
	PaddleLocation  float32
	Score           int
}

// NewMatch builds the Match message for one assignment, with the player at rest in the middle of the field.
func NewMatch(a MatchAssignment) *Match {
	return &Match{
		Host:  a.Address.Host,
		Port:  a.Address.Port,
		Token: a.Token,
		Player: Player{
			Seat:            a.Seat,
			PaddleDirection: DirectionStop,
			PaddleLocation:  0.5,
			Score:           0,
		},
	}
}

type Query struct{}

func (m *Query) MessageName() string {
	return MessageNameQuery
}

type Status struct {
	Phase Phase
}

func (m *Status) MessageName() string {
	return MessageNameStatus
}

type Prepare struct {
	Secret string
}

func (m *Prepare) MessageName() string {
	return MessageNamePrepare
}
