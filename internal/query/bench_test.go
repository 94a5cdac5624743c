package query

import (
	"testing"

	"github.com/hyperjump/kham/internal/config"
	"github.com/hyperjump/kham/internal/dictionary"
	"github.com/hyperjump/kham/internal/segment"
)

func BenchmarkProcess(b *testing.B) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	store := dictionary.NewStore(dictionary.DefaultBase(), []string{"วากาเมะ"})
	seg, err := segment.New(store, cfg.Tokenizer)
	if err != nil {
		b.Fatal(err)
	}
	p := New(seg, cfg.Query, nil)
	for _, mode := range []Mode{ModeGeneral, ModeCompound} {
		b.Run(string(mode), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = p.Process("API การใช้ สาหร่าย", DefaultOptions(), mode)
			}
		})
	}
}
