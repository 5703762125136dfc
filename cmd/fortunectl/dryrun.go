package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/provider"
	"github.com/tarotlab/fortune-core/internal/modules/fortune/reading"
)

// dryRunProvider answers every request locally. Core requests carry a seed;
// expansions are padded in proportion to their token budget so each tier
// clears its length floor without a follow-up call.
func dryRunProvider() *provider.Fake {
	return provider.NewFake(func(req provider.Request) provider.Result {
		if req.Seed != nil {
			return jsonResult(reading.CoreReading{
				CoreSummary: fmt.Sprintf("A steady path opens (seed %d).", *req.Seed),
				CoreSections: []reading.Section{
					{Title: "Present", Content: "What stands before you now.", Icon: "🌅"},
					{Title: "Challenge", Content: "What asks for patience.", Icon: "⛰️"},
					{Title: "Outcome", Content: "Where the current leads.", Icon: "🌊"},
				},
				CoreKeyPoints: []string{"patience", "clarity", "timing", "trust"},
				CoreGuidance:  "Move when the signs agree.",
			})
		}

		body := strings.Repeat("The pattern deepens with each card. ", req.MaxTokens/48+1)
		return jsonResult(reading.Content{
			Summary: body,
			Sections: []reading.Section{
				{Title: fmt.Sprintf("Depth %d", req.MaxTokens), Content: body, Icon: "🔮"},
			},
			KeyPoints: []string{fmt.Sprintf("budget %d", req.MaxTokens)},
			Guidance:  "Return to this reading at the next new moon.",
		})
	})
}

func jsonResult(v any) provider.Result {
	raw, err := json.Marshal(v)
	if err != nil {
		return provider.Failure(err)
	}
	return provider.Text(string(raw))
}
