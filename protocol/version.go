package protocol

import "fmt"

// Version identifies a STOMP protocol revision. Versions are totally
// ordered; AtLeast implements the "hasVersion" comparison used when deciding
// which headers a verb frame needs.
type Version int

const (
	V10 Version = iota
	V11
	V12
)

// AllVersions lists every supported revision in ascending order.
var AllVersions = []Version{V10, V11, V12}

func (v Version) String() string {
	switch v {
	case V10:
		return "1.0"
	case V11:
		return "1.1"
	case V12:
		return "1.2"
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// AtLeast reports whether v is the given revision or a later one.
func (v Version) AtLeast(o Version) bool {
	return v >= o
}

// ParseVersion maps a CONNECTED version header value to a Version.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "1.0", "":
		return V10, nil
	case "1.1":
		return V11, nil
	case "1.2":
		return V12, nil
	}
	return V10, fmt.Errorf("stomp: unsupported protocol version %q", s)
}

// VersionList renders versions as an accept-version header value.
func VersionList(versions []Version) string {
	out := ""
	for i, v := range versions {
		if i > 0 {
			out += ","
		}
		out += v.String()
	}
	return out
}

// HeartBeat is the client side of the heart-beat negotiation, in
// milliseconds: Send is the interval the client promises to emit at,
// Receive the interval it wants from the server. The zero value disables
// heartbeating.
type HeartBeat struct {
	Send    int
	Receive int
}

func (h HeartBeat) String() string {
	return fmt.Sprintf("%d,%d", h.Send, h.Receive)
}
