package audio

// GateConfig holds configuration for the RMS speech gate.
type GateConfig struct {
	EnergyThreshold float64 // RMS threshold for speech detection, on [0,1] samples
	SilenceFrames   int     // consecutive silent frames that end a speech run
	FrameSize       int     // samples per frame
}

// GateConfigForEagerness maps a session's turn-detection eagerness to gate
// parameters. Higher eagerness trips on quieter speech and ends turns after
// shorter silences.
func GateConfigForEagerness(eagerness string) *GateConfig {
	cfg := DefaultGateConfig()
	switch eagerness {
	case "high":
		cfg.EnergyThreshold = 0.01
		cfg.SilenceFrames = 8
	case "low":
		cfg.EnergyThreshold = 0.03
		cfg.SilenceFrames = 25
	}
	return cfg
}

// DefaultGateConfig returns the configuration used for "auto" eagerness.
func DefaultGateConfig() *GateConfig {
	return &GateConfig{
		EnergyThreshold: 0.015,
		SilenceFrames:   15,
		FrameSize:       320, // 20ms at 16kHz
	}
}

// SpeechGate tracks whether the inbound audio stream currently carries
// speech. The gateway uses its edges to emit speech_started/speech_stopped
// events and to trigger barge-in before the recognizer round trip returns.
type SpeechGate struct {
	config         *GateConfig
	silenceCounter int
	speaking       bool
}

// NewSpeechGate creates a gate; a nil config selects the defaults.
func NewSpeechGate(config *GateConfig) *SpeechGate {
	if config == nil {
		config = DefaultGateConfig()
	}
	return &SpeechGate{config: config}
}

// Process feeds one frame of normalized samples through the gate.
// Returns (speaking, speechStarted, speechEnded).
func (g *SpeechGate) Process(samples []float64) (bool, bool, bool) {
	rms := CalculateRMS(samples)
	frameHasSpeech := rms > g.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		g.silenceCounter = 0
		if !g.speaking {
			speechStarted = true
			g.speaking = true
		}
	} else {
		g.silenceCounter++
		if g.speaking && g.silenceCounter >= g.config.SilenceFrames {
			speechEnded = true
			g.speaking = false
			g.silenceCounter = 0
		}
	}

	return g.speaking, speechStarted, speechEnded
}

// Reset clears the gate state between turns.
func (g *SpeechGate) Reset() {
	g.silenceCounter = 0
	g.speaking = false
}

// IsSpeaking returns whether speech is currently detected.
func (g *SpeechGate) IsSpeaking() bool {
	return g.speaking
}
