package domain

// Audio MIME types the system negotiates, in capture preference order.
const (
	MIMEWebMOpus = "audio/webm;codecs=opus"
	MIMEWebM     = "audio/webm"
	MIMEMP4      = "audio/mp4"
	MIMEOggOpus  = "audio/ogg;codecs=opus"
	MIMEWav      = "audio/wav"
)

// CaptureMIMEPreference is the ordered list of containers capture is willing
// to produce; the first one the device supports wins.
var CaptureMIMEPreference = []string{
	MIMEWebMOpus,
	MIMEWebM,
	MIMEMP4,
	MIMEOggOpus,
	MIMEWav,
}

// MinRecordingBytes is the smallest blob capture will hand downstream;
// anything shorter is noise or an aborted press.
const MinRecordingBytes = 1000

// Recording is a finalized capture blob with its negotiated container type.
type Recording struct {
	Data     []byte
	MIMEType string
}

// SynthesisRequest is the payload handed to a speech synthesizer.
type SynthesisRequest struct {
	Text          string         `json:"text"`
	VoiceID       string         `json:"voice_id,omitempty"`
	ModelID       string         `json:"model_id,omitempty"`
	VoiceSettings map[string]any `json:"voice_settings,omitempty"`
}

// SynthesizedAudio is the synthesizer's output: raw bytes, and a URL when the
// audio store is enabled.
type SynthesizedAudio struct {
	Data     []byte
	MIMEType string
	URL      string
}
