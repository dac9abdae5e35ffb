package protocol

import "gostomp/frame"

// Apollo is the Apache Apollo dialect. Apollo follows the generic rules;
// the type exists as the hook point for per-broker extension headers.
type Apollo struct {
	*Stomp

	// SubscribeHeaders are appended to every SUBSCRIBE frame.
	SubscribeHeaders map[string]string
}

// NewApollo wraps the generic dialect with Apollo behavior.
func NewApollo(base *Stomp) *Apollo {
	return &Apollo{Stomp: base}
}

// SubscribeFrame applies any configured Apollo extension headers.
func (a *Apollo) SubscribeFrame(destination, id string, opts SubscribeOptions) (*frame.Frame, error) {
	f, err := a.Stomp.SubscribeFrame(destination, id, opts)
	if err != nil {
		return nil, err
	}
	for k, v := range a.SubscribeHeaders {
		f.Header.Set(k, v)
	}
	return f, nil
}
