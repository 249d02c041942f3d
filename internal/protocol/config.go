package protocol

// InferenceConfig tunes response generation on the backend.
type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	TopP        float64 `json:"topP"`
	Temperature float64 `json:"temperature"`
}

// AudioInputConfig describes the audio the client sends.
type AudioInputConfig struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	Encoding        string `json:"encoding"`
	AudioType       string `json:"audioType,omitempty"`
}

// AudioOutputConfig describes the audio the backend synthesizes.
type AudioOutputConfig struct {
	MediaType       string `json:"mediaType"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	SampleSizeBits  int    `json:"sampleSizeBits"`
	ChannelCount    int    `json:"channelCount"`
	Encoding        string `json:"encoding"`
	VoiceID         string `json:"voiceId"`
}

// TextInputConfig describes a text content payload.
type TextInputConfig struct {
	MediaType string `json:"mediaType"`
}

// ToolConfig carries tool metadata for a prompt. The client treats it as
// opaque: tools execute on the backend.
type ToolConfig struct {
	Tools []ToolSpec `json:"tools,omitempty"`
}

// ToolSpec names one tool offered to the backend for a prompt.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema map[string]any  `json:"inputSchema,omitempty"`
}

// Frozen defaults. Exported accessors return copies so callers can override
// any subset without mutating shared state.
var (
	defaultInference = InferenceConfig{
		MaxTokens:   1024,
		TopP:        0.9,
		Temperature: 0.7,
	}

	defaultAudioInput = AudioInputConfig{
		MediaType:       "audio/lpcm",
		SampleRateHertz: 16000,
		SampleSizeBits:  16,
		ChannelCount:    1,
		Encoding:        "base64",
		AudioType:       "SPEECH",
	}

	defaultAudioOutput = AudioOutputConfig{
		MediaType:       "audio/lpcm",
		SampleRateHertz: 24000,
		SampleSizeBits:  16,
		ChannelCount:    1,
		Encoding:        "base64",
		VoiceID:         "tiffany",
	}

	defaultTextInput = TextInputConfig{MediaType: "text/plain"}
)

// DefaultInferenceConfig returns a copy of the frozen inference defaults.
func DefaultInferenceConfig() InferenceConfig { return defaultInference }

// DefaultAudioInputConfig returns a copy of the frozen audio input defaults.
func DefaultAudioInputConfig() AudioInputConfig { return defaultAudioInput }

// DefaultAudioOutputConfig returns a copy of the frozen audio output
// defaults.
func DefaultAudioOutputConfig() AudioOutputConfig { return defaultAudioOutput }

// mergeInference fills zero-valued fields of override with the defaults.
func mergeInference(override InferenceConfig) InferenceConfig {
	out := defaultInference
	if override.MaxTokens > 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.TopP > 0 {
		out.TopP = override.TopP
	}
	if override.Temperature > 0 {
		out.Temperature = override.Temperature
	}
	return out
}

// mergeAudioInput fills zero-valued fields of override with the defaults.
func mergeAudioInput(override AudioInputConfig) AudioInputConfig {
	out := defaultAudioInput
	if override.MediaType != "" {
		out.MediaType = override.MediaType
	}
	if override.SampleRateHertz > 0 {
		out.SampleRateHertz = override.SampleRateHertz
	}
	if override.SampleSizeBits > 0 {
		out.SampleSizeBits = override.SampleSizeBits
	}
	if override.ChannelCount > 0 {
		out.ChannelCount = override.ChannelCount
	}
	if override.Encoding != "" {
		out.Encoding = override.Encoding
	}
	if override.AudioType != "" {
		out.AudioType = override.AudioType
	}
	return out
}

// mergeAudioOutput fills zero-valued fields of override with the defaults.
func mergeAudioOutput(override AudioOutputConfig) AudioOutputConfig {
	out := defaultAudioOutput
	if override.MediaType != "" {
		out.MediaType = override.MediaType
	}
	if override.SampleRateHertz > 0 {
		out.SampleRateHertz = override.SampleRateHertz
	}
	if override.SampleSizeBits > 0 {
		out.SampleSizeBits = override.SampleSizeBits
	}
	if override.ChannelCount > 0 {
		out.ChannelCount = override.ChannelCount
	}
	if override.Encoding != "" {
		out.Encoding = override.Encoding
	}
	if override.VoiceID != "" {
		out.VoiceID = override.VoiceID
	}
	return out
}
