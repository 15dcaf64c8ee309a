package auth

// Observer receives auth outcomes, usually to feed metrics. Implementations
// must be safe for concurrent use.
type Observer interface {
	// AuthEvent is called once per login, refresh, logout or gateway
	// rejection with the resulting error, nil on success.
	AuthEvent(event string, err error)
	AuditDropped()
}

type nopObserver struct{}

func (nopObserver) AuthEvent(string, error) {}
func (nopObserver) AuditDropped()           {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
