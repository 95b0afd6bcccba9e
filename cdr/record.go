// Package cdr models Microsoft Teams call quality records, generates synthetic
// ones, and flattens them into text and metrics for retrieval and routing.
package cdr

import (
	"fmt"
	"time"
)

// CallType is the kind of call a record describes.
type CallType string

const (
	CallTypeGroup      CallType = "groupCall"
	CallTypePeerToPeer CallType = "peerToPeer"
)

// Modality is a media kind used in a call.
type Modality string

const (
	ModalityAudio         Modality = "audio"
	ModalityVideo         Modality = "video"
	ModalityScreenSharing Modality = "videoBasedScreenSharing"
)

// AllModalities lists every modality in canonical order.
var AllModalities = []Modality{ModalityAudio, ModalityVideo, ModalityScreenSharing}

// Stream directions.
const (
	DirectionCallerToCallee = "callerToCallee"
	DirectionCalleeToCaller = "calleeToCaller"
)

// FlatTimeLayout is the timestamp layout of flat records: microsecond
// precision with a literal Z suffix for UTC.
const FlatTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// CallRecord is one conference with its sessions, participants and streams.
type CallRecord struct {
	ID            string     `json:"id"`
	Version       int        `json:"version"`
	CallType      CallType   `json:"type"`
	Modalities    []Modality `json:"modalities"`
	StartDateTime time.Time  `json:"startDateTime"`
	EndDateTime   time.Time  `json:"endDateTime"`
	Organizer     Identity   `json:"organizer"`
	Sessions      []Session  `json:"sessions"`
}

// Identity names a Teams user.
type Identity struct {
	UPN         string `json:"userPrincipalName"`
	DisplayName string `json:"displayName,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`
}

// Session is one leg of a call.
type Session struct {
	ID            string        `json:"id"`
	Modalities    []Modality    `json:"modalities"`
	StartDateTime time.Time     `json:"startDateTime"`
	EndDateTime   time.Time     `json:"endDateTime"`
	Participants  []Participant `json:"participants"`
}

// Participant is an endpoint in a session.
type Participant struct {
	Identity      Identity      `json:"identity"`
	Platform      string        `json:"platform"`
	ProductFamily string        `json:"productFamily,omitempty"`
	Device        DeviceInfo    `json:"device"`
	Network       NetworkInfo   `json:"network"`
	Streams       []MediaStream `json:"streams"`
}

// DeviceInfo holds audio device health for an endpoint.
type DeviceInfo struct {
	CaptureDeviceName     string   `json:"captureDeviceName,omitempty"`
	RenderDeviceName      string   `json:"renderDeviceName,omitempty"`
	MicGlitchRate         *float64 `json:"micGlitchRate"`
	SpeakerGlitchRate     *float64 `json:"speakerGlitchRate"`
	InitialSignalLevelRMS *float64 `json:"initialSignalLevelRootMeanSquare"`
	SignalLevelDBFS       *float64 `json:"signalLevelDbfs"`
}

// NetworkInfo describes the endpoint's connection.
type NetworkInfo struct {
	ConnectionType     string   `json:"connectionType,omitempty"`
	IPAddress          string   `json:"ipAddress,omitempty"`
	ReflexiveIPAddress string   `json:"reflexiveIPAddress,omitempty"`
	WifiSignalStrength *float64 `json:"wifiSignalStrength"`
}

// MediaStream carries the per-direction quality metrics. Nil means not
// reported.
type MediaStream struct {
	StreamID                string    `json:"streamId"`
	Direction               string    `json:"streamDirection"`
	MediaType               Modality  `json:"mediaType"`
	AverageJitter           *Duration `json:"averageJitter"`
	MaxJitter               *Duration `json:"maxJitter"`
	AverageRoundTripTime    *Duration `json:"averageRoundTripTime"`
	MaxRoundTripTime        *Duration `json:"maxRoundTripTime"`
	AveragePacketLossRate   *float64  `json:"averagePacketLossRate"`
	MaxPacketLossRate       *float64  `json:"maxPacketLossRate"`
	AverageAudioDegradation *float64  `json:"averageAudioDegradation"`
}

// StreamRef locates a stream inside a record.
type StreamRef struct {
	Session     int
	Participant int
	Stream      int
	Path        string
	Platform    string
	Value       *MediaStream
}

// Streams returns every stream of the record in document order.
func (c *CallRecord) Streams() []StreamRef {
	var refs []StreamRef
	for si := range c.Sessions {
		s := &c.Sessions[si]
		for pi := range s.Participants {
			p := &s.Participants[pi]
			for mi := range p.Streams {
				refs = append(refs, StreamRef{
					Session:     si,
					Participant: pi,
					Stream:      mi,
					Path:        fmt.Sprintf("sessions[%d].participants[%d].streams[%d]", si, pi, mi),
					Platform:    p.Platform,
					Value:       &p.Streams[mi],
				})
			}
		}
	}
	return refs
}

// Participants returns every distinct participant by UPN in first-seen order.
func (c *CallRecord) Participants() []Participant {
	seen := make(map[string]bool)
	var out []Participant
	for _, s := range c.Sessions {
		for _, p := range s.Participants {
			key := p.Identity.UPN
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out
}

// OrganizerPlatform returns the platform of the organizer's endpoint, falling
// back to the first participant.
func (c *CallRecord) OrganizerPlatform() string {
	parts := c.Participants()
	for _, p := range parts {
		if p.Identity.UPN == c.Organizer.UPN {
			return p.Platform
		}
	}
	if len(parts) > 0 {
		return parts[0].Platform
	}
	return ""
}

// Worst is the worst observed value of each metric across a record.
// Higher is worse for everything except SignalLevel, where lower is worse.
type Worst struct {
	Jitter            *Duration
	RoundTrip         *Duration
	PacketLoss        *float64
	AudioDegradation  *float64
	MicGlitchRate     *float64
	SpeakerGlitchRate *float64
	SignalLevel       *float64
}

// Worst aggregates the record's streams and devices.
func (c *CallRecord) Worst() Worst {
	var w Worst
	for _, ref := range c.Streams() {
		st := ref.Value
		w.Jitter = maxDuration(w.Jitter, st.AverageJitter)
		w.RoundTrip = maxDuration(w.RoundTrip, st.AverageRoundTripTime)
		w.PacketLoss = maxFloat(w.PacketLoss, st.AveragePacketLossRate)
		w.AudioDegradation = maxFloat(w.AudioDegradation, st.AverageAudioDegradation)
	}
	for _, p := range c.Participants() {
		w.MicGlitchRate = maxFloat(w.MicGlitchRate, p.Device.MicGlitchRate)
		w.SpeakerGlitchRate = maxFloat(w.SpeakerGlitchRate, p.Device.SpeakerGlitchRate)
		if v := p.Device.SignalLevelDBFS; v != nil && (w.SignalLevel == nil || *v < *w.SignalLevel) {
			w.SignalLevel = float64Ptr(*v)
		}
	}
	return w
}

// FlatRecord is the single-level record shape: one line per conference with
// the organizer's platform and the headline quality metrics.
type FlatRecord struct {
	ConferenceID            string   `json:"conferenceId"`
	CallType                CallType `json:"callType"`
	StartDateTime           string   `json:"startDateTime"`
	Modalities              []string `json:"modalities"`
	OrganizerUPN            string   `json:"organizerUPN"`
	ClientPlatform          string   `json:"clientPlatform"`
	AverageJitter           *string  `json:"averageJitter"`
	AverageAudioDegradation *float64 `json:"averageAudioDegradation"`
}

// Flat projects the record onto the flat shape using worst-case metrics.
func (c *CallRecord) Flat() FlatRecord {
	w := c.Worst()
	f := FlatRecord{
		ConferenceID:            c.ID,
		CallType:                c.CallType,
		StartDateTime:           c.StartDateTime.UTC().Format(FlatTimeLayout),
		OrganizerUPN:            c.Organizer.UPN,
		ClientPlatform:          c.OrganizerPlatform(),
		AverageAudioDegradation: w.AudioDegradation,
	}
	for _, m := range c.Modalities {
		f.Modalities = append(f.Modalities, string(m))
	}
	if w.Jitter != nil {
		s := formatJitterSeconds(w.Jitter.Seconds())
		f.AverageJitter = &s
	}
	return f
}

func formatJitterSeconds(secs float64) string {
	return fmt.Sprintf("PT%.3fS", secs)
}

func maxDuration(cur, v *Duration) *Duration {
	if v == nil {
		return cur
	}
	if cur == nil || v.Duration > cur.Duration {
		return &Duration{Duration: v.Duration}
	}
	return cur
}

func maxFloat(cur, v *float64) *float64 {
	if v == nil {
		return cur
	}
	if cur == nil || *v > *cur {
		return float64Ptr(*v)
	}
	return cur
}

func float64Ptr(v float64) *float64 {
	return &v
}
