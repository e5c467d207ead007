package models

import "time"

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Coordinate is an immutable lat/lng pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// IsZero reports whether the coordinate was never set. (0,0) is in the
// Gulf of Guinea and is not a plausible recipient or event location.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Recipient is a registered notification target. The registry is read-only
// from the dispatch pipeline's perspective.
type Recipient struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Phone       string      `json:"phone"`
	Email       string      `json:"email"`
	Region      string      `json:"region"`
	Coordinates *Coordinate `json:"coordinates,omitempty"`
	OptIns      OptIns      `json:"opt_ins"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
}

type OptIns struct {
	SMS   bool `json:"sms"`
	Email bool `json:"email"`
	Push  bool `json:"push"`
}

// OptedIn reports whether the recipient accepts the given channel.
func (r *Recipient) OptedIn(ch Channel) bool {
	switch ch {
	case ChannelSMS:
		return r.OptIns.SMS
	case ChannelEmail:
		return r.OptIns.Email
	case ChannelPush:
		return r.OptIns.Push
	default:
		return false
	}
}

// Address returns the contact address for a channel, empty if none.
func (r *Recipient) Address(ch Channel) string {
	switch ch {
	case ChannelSMS:
		return r.Phone
	case ChannelEmail:
		return r.Email
	default:
		return ""
	}
}
