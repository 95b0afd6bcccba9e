package cdr

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultUPNs are the organizers used by the generator.
var DefaultUPNs = []string{
	"adele.vance@contoso.com",
	"alex.wilber@contoso.com",
	"megan.bowen@contoso.com",
	"lynne.robbins@contoso.com",
	"diego.siciliani@contoso.com",
	"patti.ferguson@contoso.com",
}

// FlatPlatforms are the client platforms of flat records.
var FlatPlatforms = []string{"windows", "macOS", "android"}

// DesktopPlatforms are native client platforms for nested records.
var DesktopPlatforms = []string{"windows", "macOS", "android", "iOS", "web"}

// VDIPlatforms are virtual desktop client platforms.
var VDIPlatforms = []string{"citrixVDI", "vmwareHorizon", "azureVirtualDesktop"}

var callTypes = []CallType{CallTypeGroup, CallTypePeerToPeer}

var connectionTypes = []string{"wired", "wifi", "mobile"}

var captureDevices = []string{"Jabra Evolve2 65", "Poly Voyager Focus", "Surface Laptop Microphone", "MacBook Pro Microphone", "Logitech Zone Wired"}

var vdiCaptureDevices = []string{"Citrix HDX Audio", "VMware Virtual Microphone", "Remote Audio"}

// Generator produces synthetic call records. It is not safe for concurrent use.
type Generator struct {
	rnd        *rand.Rand
	now        func() time.Time
	upns       []string
	poorRatio  float64
	vdiRatio   float64
	jitterProb float64
	degProb    float64
	logger     *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithSeed makes generation deterministic.
func WithSeed(seed int64) GeneratorOption {
	return func(g *Generator) {
		g.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithRand sets the random source.
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) {
		g.rnd = r
	}
}

// WithClock sets the reference time that start times are computed from.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

// WithUPNs sets the pool of user principal names.
func WithUPNs(upns ...string) GeneratorOption {
	return func(g *Generator) {
		if len(upns) > 0 {
			g.upns = upns
		}
	}
}

// WithPoorQualityRatio sets the fraction of nested records with a degraded
// endpoint.
func WithPoorQualityRatio(ratio float64) GeneratorOption {
	return func(g *Generator) {
		g.poorRatio = clamp01(ratio)
	}
}

// WithVDIRatio sets the fraction of participants on a virtual desktop.
func WithVDIRatio(ratio float64) GeneratorOption {
	return func(g *Generator) {
		g.vdiRatio = clamp01(ratio)
	}
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a generator. Without WithSeed it is seeded from the
// clock.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		now:        time.Now,
		upns:       DefaultUPNs,
		poorRatio:  0.3,
		vdiRatio:   0.15,
		jitterProb: 0.7,
		degProb:    0.4,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return g
}

// GenerateFlat produces n flat records. Jitter is reported for about 70% of
// records and audio degradation for about 40%.
func (g *Generator) GenerateFlat(n int) []FlatRecord {
	now := g.now().UTC()
	out := make([]FlatRecord, 0, n)
	for i := 0; i < n; i++ {
		rec := FlatRecord{
			ConferenceID:   g.uuid(),
			CallType:       callTypes[g.rnd.Intn(len(callTypes))],
			StartDateTime:  now.Add(-time.Duration(g.intRange(5, 120)) * time.Minute).Format(FlatTimeLayout),
			OrganizerUPN:   g.pick(g.upns),
			ClientPlatform: g.pick(FlatPlatforms),
		}
		for _, m := range g.modalities() {
			rec.Modalities = append(rec.Modalities, string(m))
		}
		if g.rnd.Float64() < g.jitterProb {
			s := formatJitterSeconds(g.uniform(0.005, 0.080))
			rec.AverageJitter = &s
		}
		if g.rnd.Float64() < g.degProb {
			d := round(g.uniform(0.1, 1.0), 2)
			rec.AverageAudioDegradation = &d
		}
		out = append(out, rec)
	}
	g.logger.Debug("generated flat call records", "count", n)
	return out
}

type degradation int

const (
	degradeNone degradation = iota
	degradeNetwork
	degradeDevice
)

// Generate produces n nested call records.
func (g *Generator) Generate(n int) []CallRecord {
	now := g.now().UTC()
	out := make([]CallRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.record(now))
	}
	g.logger.Debug("generated call records", "count", n)
	return out
}

func (g *Generator) record(now time.Time) CallRecord {
	start := now.Add(-time.Duration(g.intRange(5, 120)) * time.Minute).Truncate(time.Second)
	end := start.Add(time.Duration(g.intRange(2, 60)) * time.Minute)
	callType := callTypes[g.rnd.Intn(len(callTypes))]
	modalities := g.modalities()

	people := 2
	if callType == CallTypeGroup {
		people = g.intRange(2, 4)
	}
	upns := g.distinct(g.upns, people)

	bad := degradeNone
	badIdx := -1
	if g.rnd.Float64() < g.poorRatio {
		bad = degradeNetwork
		if g.rnd.Intn(2) == 1 {
			bad = degradeDevice
		}
		badIdx = g.rnd.Intn(len(upns))
	}

	participants := make([]Participant, len(upns))
	for i, upn := range upns {
		kind := degradeNone
		if i == badIdx {
			kind = bad
		}
		participants[i] = g.participant(upn, modalities, kind)
	}

	sessionCount := 1
	if callType == CallTypeGroup {
		sessionCount = g.intRange(1, 2)
	}
	sessions := make([]Session, sessionCount)
	span := end.Sub(start) / time.Duration(sessionCount)
	for s := range sessions {
		sessions[s] = Session{
			ID:            g.uuid(),
			Modalities:    modalities,
			StartDateTime: start.Add(time.Duration(s) * span),
			EndDateTime:   start.Add(time.Duration(s+1) * span),
		}
		// Later sessions reuse endpoints with fresh stream ids.
		for _, p := range participants {
			cp := p
			cp.Streams = make([]MediaStream, len(p.Streams))
			copy(cp.Streams, p.Streams)
			if s > 0 {
				for k := range cp.Streams {
					cp.Streams[k].StreamID = g.uuid()
				}
			}
			sessions[s].Participants = append(sessions[s].Participants, cp)
		}
	}

	return CallRecord{
		ID:            g.uuid(),
		Version:       1,
		CallType:      callType,
		Modalities:    modalities,
		StartDateTime: start,
		EndDateTime:   end,
		Organizer:     Identity{UPN: upns[0], DisplayName: displayName(upns[0])},
		Sessions:      sessions,
	}
}

func (g *Generator) participant(upn string, modalities []Modality, kind degradation) Participant {
	p := Participant{
		Identity:      Identity{UPN: upn, DisplayName: displayName(upn)},
		ProductFamily: "teams",
		Network: NetworkInfo{
			ConnectionType: g.pick(connectionTypes),
			IPAddress:      fmt.Sprintf("10.%d.%d.%d", g.rnd.Intn(256), g.rnd.Intn(256), 1+g.rnd.Intn(254)),
		},
	}
	if p.Network.ConnectionType == "wifi" {
		p.Network.WifiSignalStrength = float64Ptr(float64(g.intRange(40, 100)))
	}

	if g.rnd.Float64() < g.vdiRatio {
		p.Platform = g.pick(VDIPlatforms)
		p.ProductFamily = "teamsVDI"
		p.Device.CaptureDeviceName = g.pick(vdiCaptureDevices)
		p.Device.RenderDeviceName = p.Device.CaptureDeviceName
	} else {
		p.Platform = g.pick(DesktopPlatforms)
		p.Device.CaptureDeviceName = g.pick(captureDevices)
		p.Device.RenderDeviceName = p.Device.CaptureDeviceName
	}

	if kind == degradeDevice {
		p.Device.MicGlitchRate = float64Ptr(round(g.uniform(12, 40), 1))
		p.Device.SpeakerGlitchRate = float64Ptr(round(g.uniform(0, 15), 1))
		p.Device.SignalLevelDBFS = float64Ptr(round(g.uniform(-65, -51), 1))
	} else {
		p.Device.MicGlitchRate = float64Ptr(round(g.uniform(0, 5), 1))
		p.Device.SpeakerGlitchRate = float64Ptr(round(g.uniform(0, 5), 1))
		p.Device.SignalLevelDBFS = float64Ptr(round(g.uniform(-35, -15), 1))
	}
	p.Device.InitialSignalLevelRMS = float64Ptr(round(math.Pow(10, *p.Device.SignalLevelDBFS/20)*32768, 1))

	for _, m := range modalities {
		for _, dir := range []string{DirectionCallerToCallee, DirectionCalleeToCaller} {
			p.Streams = append(p.Streams, g.stream(m, dir, kind == degradeNetwork))
		}
	}
	return p
}

func (g *Generator) stream(m Modality, dir string, poor bool) MediaStream {
	st := MediaStream{StreamID: g.uuid(), Direction: dir, MediaType: m}

	var jitter, rtt, loss float64
	if poor {
		jitter = g.uniform(35, 120)
		rtt = g.uniform(550, 1200)
		loss = g.uniform(0.1, 0.3)
	} else {
		jitter = g.uniform(2, 25)
		rtt = g.uniform(20, 250)
		loss = g.uniform(0, 0.05)
	}
	st.AverageJitter = Millis(round(jitter, 0))
	st.MaxJitter = Millis(round(jitter*g.uniform(1.2, 2.5), 0))
	st.AverageRoundTripTime = Millis(round(rtt, 0))
	st.MaxRoundTripTime = Millis(round(rtt*g.uniform(1.1, 2), 0))
	st.AveragePacketLossRate = float64Ptr(round(loss, 4))
	st.MaxPacketLossRate = float64Ptr(round(math.Min(1, loss*g.uniform(1.2, 3)), 4))

	if m == ModalityAudio {
		switch {
		case poor:
			st.AverageAudioDegradation = float64Ptr(round(g.uniform(1.1, 2.5), 2))
		case g.rnd.Float64() < g.degProb:
			st.AverageAudioDegradation = float64Ptr(round(g.uniform(0.1, 0.9), 2))
		}
	}
	return st
}

// modalities samples 1 to 3 distinct modalities in canonical order.
func (g *Generator) modalities() []Modality {
	k := g.intRange(1, len(AllModalities))
	idx := g.rnd.Perm(len(AllModalities))[:k]
	picked := make([]bool, len(AllModalities))
	for _, i := range idx {
		picked[i] = true
	}
	var out []Modality
	for i, m := range AllModalities {
		if picked[i] {
			out = append(out, m)
		}
	}
	return out
}

func (g *Generator) distinct(pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	perm := g.rnd.Perm(len(pool))[:n]
	out := make([]string, n)
	for i, p := range perm {
		out[i] = pool[p]
	}
	return out
}

func (g *Generator) uuid() string {
	id, err := uuid.NewRandomFromReader(g.rnd)
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (g *Generator) pick(values []string) string {
	return values[g.rnd.Intn(len(values))]
}

func (g *Generator) intRange(lo, hi int) int {
	return lo + g.rnd.Intn(hi-lo+1)
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rnd.Float64()*(hi-lo)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func displayName(upn string) string {
	local, _, _ := strings.Cut(upn, "@")
	parts := strings.Split(local, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
