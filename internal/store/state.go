package store

// ConnectionState is the observable state of the store connection
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

// String implements fmt.Stringer
func (s ConnectionState) String() string {
	return string(s)
}

// IsConnected reports whether operations can be issued
func (s ConnectionState) IsConnected() bool {
	return s == StateConnected
}

// HealthLabel maps the state to the two values health reports expose
func (s ConnectionState) HealthLabel() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}
