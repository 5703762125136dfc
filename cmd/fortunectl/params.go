package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tarotlab/fortune-core/internal/modules/fortune/pipeline"
)

// paramsFlags binds the reading input to command flags.
type paramsFlags struct {
	p         pipeline.Params
	latitude  float64
	longitude float64
	cards     []string
}

func (f *paramsFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.p.System, "system", "s", "", "saju, astrology, tarot or synthesis")
	fs.StringVarP(&f.p.Locale, "locale", "l", pipeline.DefaultLocale, "ko, ja, en or zh")
	fs.StringVarP(&f.p.Question, "question", "q", "", "question to focus the reading on")
	fs.StringVar(&f.p.BirthDate, "birth-date", "", "birth date, YYYY-MM-DD")
	fs.StringVar(&f.p.BirthTime, "birth-time", "", "birth time, HH:MM")
	fs.StringVar(&f.p.BirthPlace, "birth-place", "", "birth place")
	fs.StringVar(&f.p.Gender, "gender", "", "gender, for saju")
	fs.BoolVar(&f.p.IsLunar, "lunar", false, "birth date is on the lunar calendar")
	fs.Float64Var(&f.latitude, "lat", 0, "birth latitude")
	fs.Float64Var(&f.longitude, "lon", 0, "birth longitude")
	fs.StringSliceVar(&f.cards, "card", nil, "drawn tarot card; suffix with ':r' when reversed")
	_ = cmd.MarkFlagRequired("system")
}

func (f *paramsFlags) params(cmd *cobra.Command) (pipeline.Params, error) {
	p := f.p
	p.System = strings.ToLower(strings.TrimSpace(p.System))
	if !pipeline.ValidSystem(p.System) {
		return p, fmt.Errorf("unknown system %q", p.System)
	}
	p.Locale = pipeline.NormalizeLocale(p.Locale)
	if cmd.Flags().Changed("lat") {
		lat := f.latitude
		p.Latitude = &lat
	}
	if cmd.Flags().Changed("lon") {
		lon := f.longitude
		p.Longitude = &lon
	}
	for _, raw := range f.cards {
		name, reversed := strings.CutSuffix(strings.TrimSpace(raw), ":r")
		p.DrawnCards = append(p.DrawnCards, pipeline.Card{Name: name, Reversed: reversed})
	}
	return p, nil
}
