package llama

import "inferd/pkg/types"

// Default sampling parameters applied when the caller leaves a field zero.
const (
	DefaultTemperature   = 0.7
	DefaultTopP          = 0.9
	DefaultTopK          = 40
	DefaultMaxTokens     = 2048
	DefaultRepeatPenalty = 1.1
)

// CompletionParams is the wire payload for POST /completion, minus the stream
// flag which the client sets per call.
type CompletionParams struct {
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	TopK             int      `json:"top_k"`
	NPredict         int      `json:"n_predict"`
	Stop             []string `json:"stop,omitempty"`
	RepeatPenalty    float64  `json:"repeat_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
}

// MergeParams layers caller-supplied parameters over the fixed defaults.
// Zero values mean "unset". The turn-end marker is always a stop sequence so
// the model cannot run past its own turn.
func MergeParams(p types.GenerateParams) CompletionParams {
	out := CompletionParams{
		Temperature:      DefaultTemperature,
		TopP:             DefaultTopP,
		TopK:             DefaultTopK,
		NPredict:         DefaultMaxTokens,
		RepeatPenalty:    DefaultRepeatPenalty,
		PresencePenalty:  p.PresencePenalty,
		FrequencyPenalty: p.FrequencyPenalty,
	}
	if p.Temperature > 0 {
		out.Temperature = p.Temperature
	}
	if p.TopP > 0 {
		out.TopP = p.TopP
	}
	if p.TopK > 0 {
		out.TopK = p.TopK
	}
	if p.MaxTokens > 0 {
		out.NPredict = p.MaxTokens
	}
	if p.RepeatPenalty > 0 {
		out.RepeatPenalty = p.RepeatPenalty
	}
	stop := []string{TurnEnd}
	for _, s := range p.Stop {
		if s != "" && s != TurnEnd {
			stop = append(stop, s)
		}
	}
	out.Stop = stop
	return out
}
