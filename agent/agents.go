package agent

import (
	"github.com/aqua777/go-callrag/cdr"
	"github.com/aqua777/go-callrag/router"
)

// NetworkAgent handles calls with poor transport metrics.
type NetworkAgent struct{ base }

// VDIAgent handles calls made from virtual desktop clients.
type VDIAgent struct{ base }

// LogAgent handles calls whose device telemetry needs a client log review.
type LogAgent struct{ base }

// NoneAgent reports records that no rule routed.
type NoneAgent struct{ base }

var (
	_ Agent = (*NetworkAgent)(nil)
	_ Agent = (*VDIAgent)(nil)
	_ Agent = (*LogAgent)(nil)
	_ Agent = (*NoneAgent)(nil)
)

// NewNetworkAgent reports jitter, loss, round trip and degradation fields and
// recommends transport checks.
func NewNetworkAgent(opts ...Option) *NetworkAgent {
	return &NetworkAgent{newBase(
		"network-agent",
		router.CategoryNetwork,
		"Network degradation detected on this call.",
		[]string{
			cdr.FieldAverageJitter,
			cdr.FieldPacketLossRate,
			cdr.FieldRoundTripTime,
			cdr.FieldAudioDegradation,
			cdr.FieldConnectionType,
		},
		[]string{
			"Check the user's connection type and prefer wired over Wi-Fi.",
			"Verify QoS markings for Teams media ports (UDP 3478-3481).",
			"Review the network path for congestion or VPN hair-pinning.",
		},
		opts,
	)}
}

// NewVDIAgent reports the client platform and recommends VDI media
// optimization checks.
func NewVDIAgent(opts ...Option) *VDIAgent {
	return &VDIAgent{newBase(
		"vdi-agent",
		router.CategoryVDI,
		"Call was placed from a virtual desktop client.",
		[]string{
			cdr.FieldClientPlatform,
			cdr.FieldPlatforms,
			cdr.FieldProductFamily,
			cdr.FieldCaptureDevice,
		},
		[]string{
			"Confirm media optimization (WebRTC or SlimCore redirection) is active.",
			"Check the VDI client and Teams plugin versions on the endpoint.",
			"Review host CPU and session density on the VDI pool.",
		},
		opts,
	)}
}

// NewLogAgent reports device glitch and signal fields and recommends a
// client log review.
func NewLogAgent(opts ...Option) *LogAgent {
	return &LogAgent{newBase(
		"log-agent",
		router.CategoryLog,
		"Device telemetry points at a client-side audio problem.",
		[]string{
			cdr.FieldMicGlitchRate,
			cdr.FieldSpeakerGlitchRate,
			cdr.FieldSignalLevel,
			cdr.FieldCaptureDevice,
			cdr.FieldRenderDevice,
		},
		[]string{
			"Collect Teams client diagnostic logs from the affected user.",
			"Check audio driver versions and the selected capture device.",
			"Ask the user to run a test call to confirm microphone levels.",
		},
		opts,
	)}
}

// NewNoneAgent returns the agent used when nothing fires. It never calls a model.
func NewNoneAgent() *NoneAgent {
	return &NoneAgent{newBase(
		"none",
		router.CategoryNone,
		"No threshold exceeded; no agent action needed.",
		nil,
		nil,
		nil,
	)}
}
