package cdr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Metric units.
const (
	UnitMilliseconds = "ms"
	UnitRatio        = "ratio"
	UnitEventsPer5m  = "events/5min"
	UnitDBFS         = "dBFS"
	UnitMOS          = "mos"
)

// Field names of Summary.Fields.
const (
	FieldConferenceID      = "conferenceId"
	FieldCallType          = "callType"
	FieldOrganizerUPN      = "organizerUPN"
	FieldStartDateTime     = "startDateTime"
	FieldModalities        = "modalities"
	FieldClientPlatform    = "clientPlatform"
	FieldPlatforms         = "platforms"
	FieldProductFamily     = "productFamily"
	FieldCaptureDevice     = "captureDeviceName"
	FieldRenderDevice      = "renderDeviceName"
	FieldConnectionType    = "connectionType"
	FieldAverageJitter     = "averageJitter"
	FieldRoundTripTime     = "averageRoundTripTime"
	FieldPacketLossRate    = "averagePacketLossRate"
	FieldAudioDegradation  = "averageAudioDegradation"
	FieldMicGlitchRate     = "micGlitchRate"
	FieldSpeakerGlitchRate = "speakerGlitchRate"
	FieldSignalLevel       = "signalLevelDbfs"
)

// NotAvailable stands in for a metric the record does not report.
const NotAvailable = "N/A"

// Metric is one numeric observation with its location in the record.
type Metric struct {
	Path  string  `json:"path"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Summary is the flattened form of a record: a sentence-style description
// for embedding, the metric list, and a flat key/value view for routing.
type Summary struct {
	RecordID string            `json:"recordId"`
	Text     string            `json:"text"`
	Metrics  []Metric          `json:"metrics"`
	Fields   map[string]string `json:"fields"`
}

// Flatten turns a nested call record into a Summary.
func Flatten(rec *CallRecord) Summary {
	w := rec.Worst()
	parts := rec.Participants()

	var platforms, products, captures, renders, conns []string
	for _, p := range parts {
		platforms = appendUnique(platforms, p.Platform)
		products = appendUnique(products, p.ProductFamily)
		captures = appendUnique(captures, p.Device.CaptureDeviceName)
		renders = appendUnique(renders, p.Device.RenderDeviceName)
		conns = appendUnique(conns, p.Network.ConnectionType)
	}
	modalities := make([]string, len(rec.Modalities))
	for i, m := range rec.Modalities {
		modalities[i] = string(m)
	}

	fields := map[string]string{
		FieldConferenceID:   rec.ID,
		FieldCallType:       string(rec.CallType),
		FieldOrganizerUPN:   rec.Organizer.UPN,
		FieldStartDateTime:  rec.StartDateTime.UTC().Format(FlatTimeLayout),
		FieldModalities:     strings.Join(modalities, ","),
		FieldClientPlatform: rec.OrganizerPlatform(),
		FieldPlatforms:      strings.Join(platforms, ","),
		FieldProductFamily:  strings.Join(products, ","),
		FieldCaptureDevice:  strings.Join(captures, ","),
		FieldRenderDevice:   strings.Join(renders, ","),
		FieldConnectionType: strings.Join(conns, ","),
	}
	if w.Jitter != nil {
		fields[FieldAverageJitter] = w.Jitter.String()
	}
	if w.RoundTrip != nil {
		fields[FieldRoundTripTime] = w.RoundTrip.String()
	}
	setFloat(fields, FieldPacketLossRate, w.PacketLoss)
	setFloat(fields, FieldAudioDegradation, w.AudioDegradation)
	setFloat(fields, FieldMicGlitchRate, w.MicGlitchRate)
	setFloat(fields, FieldSpeakerGlitchRate, w.SpeakerGlitchRate)
	setFloat(fields, FieldSignalLevel, w.SignalLevel)

	var b strings.Builder
	fmt.Fprintf(&b, "Call record %s organized by %s. ", rec.ID, orNA(rec.Organizer.UPN))
	fmt.Fprintf(&b, "Call type was %s with modalities %s across %d session(s) and %d participant(s). ",
		orNA(string(rec.CallType)), orNA(strings.Join(modalities, ", ")), len(rec.Sessions), len(parts))
	fmt.Fprintf(&b, "Client platforms: %s. ", orNA(strings.Join(platforms, ", ")))
	fmt.Fprintf(&b, "Worst stream quality: average jitter %s, packet loss %s, round trip %s, audio degradation %s. ",
		durationMs(w.Jitter), percent(w.PacketLoss), durationMs(w.RoundTrip), number(w.AudioDegradation, ""))
	fmt.Fprintf(&b, "Device health: mic glitch rate %s, speaker glitch rate %s, signal level %s.",
		number(w.MicGlitchRate, " per 5 min"), number(w.SpeakerGlitchRate, " per 5 min"), number(w.SignalLevel, " dBFS"))

	return Summary{
		RecordID: rec.ID,
		Text:     b.String(),
		Metrics:  Metrics(rec),
		Fields:   fields,
	}
}

// Metrics lists every reported numeric metric of the record in document order.
func Metrics(rec *CallRecord) []Metric {
	var out []Metric
	for si, s := range rec.Sessions {
		for pi, p := range s.Participants {
			base := fmt.Sprintf("sessions[%d].participants[%d]", si, pi)
			dev := base + ".device."
			out = appendMetric(out, dev+"micGlitchRate", "micGlitchRate", p.Device.MicGlitchRate, UnitEventsPer5m)
			out = appendMetric(out, dev+"speakerGlitchRate", "speakerGlitchRate", p.Device.SpeakerGlitchRate, UnitEventsPer5m)
			out = appendMetric(out, dev+"signalLevelDbfs", "signalLevelDbfs", p.Device.SignalLevelDBFS, UnitDBFS)
			for mi, st := range p.Streams {
				sp := fmt.Sprintf("%s.streams[%d].", base, mi)
				out = appendDurationMetric(out, sp+"averageJitter", "averageJitter", st.AverageJitter)
				out = appendDurationMetric(out, sp+"maxJitter", "maxJitter", st.MaxJitter)
				out = appendDurationMetric(out, sp+"averageRoundTripTime", "averageRoundTripTime", st.AverageRoundTripTime)
				out = appendDurationMetric(out, sp+"maxRoundTripTime", "maxRoundTripTime", st.MaxRoundTripTime)
				out = appendMetric(out, sp+"averagePacketLossRate", "averagePacketLossRate", st.AveragePacketLossRate, UnitRatio)
				out = appendMetric(out, sp+"maxPacketLossRate", "maxPacketLossRate", st.MaxPacketLossRate, UnitRatio)
				out = appendMetric(out, sp+"averageAudioDegradation", "averageAudioDegradation", st.AverageAudioDegradation, UnitMOS)
			}
		}
	}
	return out
}

// FlatSummary renders the one-sentence description of a flat record.
func FlatSummary(f FlatRecord) string {
	jitter := NotAvailable
	if f.AverageJitter != nil {
		jitter = *f.AverageJitter
	}
	return fmt.Sprintf(
		"Call record for user %s on %s. Call type was %s. Quality metrics show average jitter of %s and audio degradation of %s.",
		f.OrganizerUPN, f.ClientPlatform, f.CallType, jitter, number(f.AverageAudioDegradation, ""),
	)
}

// SummarizeFlat builds a Summary from a flat record.
func SummarizeFlat(f FlatRecord) Summary {
	fields := map[string]string{
		FieldConferenceID:   f.ConferenceID,
		FieldCallType:       string(f.CallType),
		FieldOrganizerUPN:   f.OrganizerUPN,
		FieldStartDateTime:  f.StartDateTime,
		FieldModalities:     strings.Join(f.Modalities, ","),
		FieldClientPlatform: f.ClientPlatform,
	}
	var metrics []Metric
	if f.AverageJitter != nil {
		fields[FieldAverageJitter] = *f.AverageJitter
		if d, err := ParseDuration(*f.AverageJitter); err == nil {
			metrics = append(metrics, Metric{Path: FieldAverageJitter, Name: FieldAverageJitter, Value: Duration{d}.Ms(), Unit: UnitMilliseconds})
		}
	}
	if f.AverageAudioDegradation != nil {
		setFloat(fields, FieldAudioDegradation, f.AverageAudioDegradation)
		metrics = append(metrics, Metric{Path: FieldAudioDegradation, Name: FieldAudioDegradation, Value: *f.AverageAudioDegradation, Unit: UnitMOS})
	}
	return Summary{
		RecordID: f.ConferenceID,
		Text:     FlatSummary(f),
		Metrics:  metrics,
		Fields:   fields,
	}
}

// KeyValue is one leaf of a flattened JSON document.
type KeyValue struct {
	Key   string
	Value string
}

// FlattenJSON flattens an arbitrary JSON document into dotted paths with
// [i] array indices. Object keys are visited in sorted order.
func FlattenJSON(data []byte) ([]KeyValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode json: trailing data")
	}
	var out []KeyValue
	flattenValue("", v, &out)
	return out, nil
}

func flattenValue(prefix string, v interface{}, out *[]KeyValue) {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 0 {
			*out = append(*out, KeyValue{Key: prefix, Value: "{}"})
			return
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenValue(key, val[k], out)
		}
	case []interface{}:
		if len(val) == 0 {
			*out = append(*out, KeyValue{Key: prefix, Value: "[]"})
			return
		}
		for i, item := range val {
			flattenValue(fmt.Sprintf("%s[%d]", prefix, i), item, out)
		}
	case nil:
		*out = append(*out, KeyValue{Key: prefix, Value: "null"})
	case json.Number:
		*out = append(*out, KeyValue{Key: prefix, Value: val.String()})
	case bool:
		*out = append(*out, KeyValue{Key: prefix, Value: strconv.FormatBool(val)})
	case string:
		*out = append(*out, KeyValue{Key: prefix, Value: val})
	}
}

// SummarizeJSON builds a Summary from any JSON object. The text lists
// "key: value" lines; null leaves are rendered as N/A.
func SummarizeJSON(id string, data []byte) (Summary, error) {
	kvs, err := FlattenJSON(data)
	if err != nil {
		return Summary{}, err
	}
	fields := make(map[string]string, len(kvs))
	lines := make([]string, 0, len(kvs))
	var metrics []Metric
	for _, kv := range kvs {
		value := kv.Value
		if value == "null" {
			value = NotAvailable
		} else {
			fields[kv.Key] = kv.Value
			if f, err := strconv.ParseFloat(kv.Value, 64); err == nil {
				metrics = append(metrics, Metric{Path: kv.Key, Name: lastSegment(kv.Key), Value: f})
			}
		}
		lines = append(lines, kv.Key+": "+value)
	}
	if v, ok := fields["id"]; ok && id == "" {
		id = v
	}
	if v, ok := fields[FieldConferenceID]; ok && id == "" {
		id = v
	}
	return Summary{RecordID: id, Text: strings.Join(lines, "\n"), Metrics: metrics, Fields: fields}, nil
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.Index(path, "["); i >= 0 {
		path = path[:i]
	}
	return path
}

func appendMetric(out []Metric, path, name string, v *float64, unit string) []Metric {
	if v == nil {
		return out
	}
	return append(out, Metric{Path: path, Name: name, Value: *v, Unit: unit})
}

func appendDurationMetric(out []Metric, path, name string, d *Duration) []Metric {
	if d == nil {
		return out
	}
	return append(out, Metric{Path: path, Name: name, Value: d.Ms(), Unit: UnitMilliseconds})
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func setFloat(fields map[string]string, key string, v *float64) {
	if v != nil {
		fields[key] = strconv.FormatFloat(*v, 'f', -1, 64)
	}
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func number(v *float64, suffix string) string {
	if v == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + suffix
}

func durationMs(d *Duration) string {
	if d == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(d.Ms(), 'f', -1, 64) + " ms"
}

func percent(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*v*100, 'f', 1, 64) + "%"
}
