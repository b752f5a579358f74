package layout

import (
	"fmt"

	"github.com/ritzau/costar/pkg/graphstore"
)

// Solver names accepted by the physics setting.
const (
	SolverBarnesHut        = "barnesHut"
	SolverForceAtlas2Based = "forceAtlas2Based"
)

// SolverParams tunes one physics solver.
type SolverParams struct {
	GravitationalConstant float64 `json:"gravitationalConstant"`
	CentralGravity        float64 `json:"centralGravity"`
	SpringLength          float64 `json:"springLength"`
	SpringConstant        float64 `json:"springConstant"`
	Damping               float64 `json:"damping"`
}

// Options are the engine options that matter to the layout.
type Options struct {
	Solver       string       `json:"solver"`
	Params       SolverParams `json:"params"`
	MinVelocity  float64      `json:"minVelocity"`
	Stabilize    bool         `json:"stabilization"`
	RandomSeed   int          `json:"randomSeed"`
	NodeSize     float64      `json:"nodeSize"`
	NodeFontSize float64      `json:"nodeFontSize"`
	EdgeWidth    float64      `json:"edgeWidth"`
}

var solverParams = map[string]SolverParams{
	SolverBarnesHut: {
		GravitationalConstant: -2000,
		CentralGravity:        0.3,
		SpringLength:          95,
		SpringConstant:        0.04,
		Damping:               0.09,
	},
	SolverForceAtlas2Based: {
		GravitationalConstant: -50,
		CentralGravity:        0.005,
		SpringLength:          80,
		SpringConstant:        0.04,
		Damping:               0.85,
	},
}

// Physics returns the options for the named solver.
func Physics(solver string) (Options, error) {
	params, ok := solverParams[solver]
	if !ok {
		return Options{}, fmt.Errorf("unknown physics solver %q", solver)
	}
	return Options{
		Solver:       solver,
		Params:       params,
		MinVelocity:  0.75,
		RandomSeed:   42,
		NodeSize:     graphstore.DefaultNodeSize,
		NodeFontSize: graphstore.DefaultFontSize,
		EdgeWidth:    graphstore.EdgeBaseWidth,
	}, nil
}

// Solvers lists the known solver names.
func Solvers() []string {
	return []string{SolverBarnesHut, SolverForceAtlas2Based}
}
