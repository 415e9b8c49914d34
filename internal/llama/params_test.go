package llama

import (
	"testing"

	"inferd/pkg/types"
)

func TestMergeParams_Defaults(t *testing.T) {
	p := MergeParams(types.GenerateParams{})
	if p.Temperature != DefaultTemperature || p.TopP != DefaultTopP || p.TopK != DefaultTopK {
		t.Fatalf("defaults not applied: %+v", p)
	}
	if p.NPredict != DefaultMaxTokens {
		t.Fatalf("n_predict default not applied: %d", p.NPredict)
	}
	if p.RepeatPenalty != DefaultRepeatPenalty {
		t.Fatalf("repeat_penalty default not applied: %v", p.RepeatPenalty)
	}
	if len(p.Stop) != 1 || p.Stop[0] != TurnEnd {
		t.Fatalf("turn-end marker must be a default stop sequence: %v", p.Stop)
	}
}

func TestMergeParams_Overrides(t *testing.T) {
	p := MergeParams(types.GenerateParams{
		Temperature: 0.2,
		TopK:        10,
		MaxTokens:   64,
		Stop:        []string{"###", TurnEnd},
	})
	if p.Temperature != 0.2 || p.TopK != 10 || p.NPredict != 64 {
		t.Fatalf("overrides not applied: %+v", p)
	}
	// TurnEnd must appear exactly once even if the caller supplied it too.
	count := 0
	for _, s := range p.Stop {
		if s == TurnEnd {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("turn-end stop duplicated: %v", p.Stop)
	}
	found := false
	for _, s := range p.Stop {
		if s == "###" {
			found = true
		}
	}
	if !found {
		t.Fatalf("caller stop sequence dropped: %v", p.Stop)
	}
}
