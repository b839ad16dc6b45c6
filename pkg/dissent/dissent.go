// Package dissent provides the public API for embedding the debate
// pipeline. This is the stable surface for external consumers; the
// underlying assembly lives in internal/runtime.
package dissent

import (
	"github.com/richardspicer/questionable-ai/internal/debate"
	"github.com/richardspicer/questionable-ai/internal/domain"
	"github.com/richardspicer/questionable-ai/internal/runtime"

	_ "github.com/richardspicer/questionable-ai/internal/registration"
)

// App is an assembled debate pipeline.
// See internal/runtime.App for full documentation.
type App = runtime.App

// Option configures an App before assembly.
type Option = runtime.Option

// New assembles a pipeline with the given options.
// Example:
//
//	app, err := dissent.New(
//	    dissent.WithConfigFile("config.yaml"),
//	)
var New = runtime.New

var (
	WithConfigFile = runtime.WithConfigFile
	WithConfig     = runtime.WithConfig
	WithLogger     = runtime.WithLogger
	WithListenAddr = runtime.WithListenAddr
)

// Debate types, re-exported so embedders can drive the orchestrator
// returned by App.Orchestrator without reaching into internal packages.
type (
	Request       = debate.Request
	ReplayRequest = debate.ReplayRequest
	Observer      = debate.Observer
	Round         = domain.DebateRound
	Transcript    = domain.DebateTranscript
)

// RoundSynthesis is the round number observers see for the synthesis
// round.
const RoundSynthesis = domain.RoundSynthesis
