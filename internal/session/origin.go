package session

// Origin names the endpoint a byte stream was received from or is being
// sent toward.
type Origin int

const (
	Client Origin = iota
	Server
)

// Opposite toggles between Client and Server.
func (o Origin) Opposite() Origin {
	if o == Client {
		return Server
	}
	return Client
}

func (o Origin) String() string {
	if o == Client {
		return "client"
	}
	return "server"
}
