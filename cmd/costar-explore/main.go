package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ritzau/costar/pkg/apperr"
	"github.com/ritzau/costar/pkg/explore"
	"github.com/ritzau/costar/pkg/explorer"
	"github.com/ritzau/costar/pkg/gateway"
	"github.com/ritzau/costar/pkg/graphstore"
	"github.com/ritzau/costar/pkg/layout"
	"github.com/ritzau/costar/pkg/logging"
	"github.com/ritzau/costar/pkg/output"
)

type options struct {
	server  string
	dataset string
	physics string
	search  string
	root    string
	expand  []string
	find    string
	details []string
	settle  int
	top     int
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("costar-explore", pflag.ExitOnError)
	flags.StringVar(&opts.server, "server", "", "costar-server URL; empty explores --dataset in process")
	flags.StringVar(&opts.dataset, "dataset", "", "YAML dataset for in-process exploration")
	flags.StringVar(&opts.physics, "physics", "", "Physics solver override (barnesHut or forceAtlas2Based)")
	flags.StringVarP(&opts.search, "search", "s", "", "Search actors by name and print the matches")
	flags.StringVarP(&opts.root, "root", "r", "", "Actor id or name to start exploring from")
	flags.StringSliceVarP(&opts.expand, "expand", "e", nil, "Actor ids or names to expand after the root, in order")
	flags.StringVar(&opts.find, "find", "", "Find actors already in the explored graph")
	flags.StringSliceVar(&opts.details, "details", nil, "Print details for these actor ids")
	flags.IntVar(&opts.settle, "settle", 500, "Maximum layout ticks before printing the summary")
	flags.IntVar(&opts.top, "top", 5, "Number of best-connected actors to list")
	verbose := flags.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	_ = flags.Parse(os.Args[1:])

	level, _ := logging.ParseLevel("warn", *verbose)
	if err := logging.Configure(os.Stderr, level, "compact"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts); err != nil {
		output.PrintError(os.Stderr, err, apperr.Hints(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	api, physics, cleanup, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.search != "" {
		actors, err := api.Search(ctx, opts.search)
		if err != nil {
			return err
		}
		output.PrintSearchResults(os.Stdout, opts.search, actors)
	}
	if opts.root == "" {
		return nil
	}

	if opts.physics != "" {
		if physics, err = layout.Physics(opts.physics); err != nil {
			return apperr.InvalidArgument("%v", err)
		}
	}
	engine := layout.NewHeadlessEngine()
	defer engine.Close()
	adapter := layout.NewAdapter(engine, physics)
	ctrl := explorer.NewController(api, graphstore.New(), adapter)
	defer ctrl.Close()

	rootID, err := resolve(ctx, api, opts.root)
	if err != nil {
		return err
	}
	res, err := ctrl.SelectRoot(ctx, rootID)
	if err != nil {
		return err
	}
	output.PrintMerge(os.Stdout, label(ctrl, rootID), res)

	for _, name := range opts.expand {
		id, err := resolve(ctx, api, name)
		if err != nil {
			return err
		}
		res, err := ctrl.Expand(ctx, id)
		if err != nil {
			return err
		}
		output.PrintMerge(os.Stdout, label(ctrl, id), res)
		engine.Step(opts.settle / 10)
	}

	ticks := engine.Settle(opts.settle)
	logging.Debug("layout settled", "ticks", ticks, "solver", engine.Options().Solver)

	fmt.Println()
	output.PrintGraphSummary(os.Stdout, ctrl.Store(), ctrl.Expanded(), opts.top)

	if opts.find != "" {
		fmt.Println()
		found := ctrl.FindInGraph(opts.find)
		if len(found) == 0 {
			fmt.Printf("No actor in the graph matches %q\n", opts.find)
		}
		for _, n := range found {
			fmt.Printf("  %s  %s\n", n.Label, n.ID)
		}
	}

	for _, id := range opts.details {
		d, ok := ctrl.NodeDetails(id)
		if !ok {
			return apperr.NotFound("actor %s is not in the explored graph", id)
		}
		preview, err := ctrl.Preview(ctx, id)
		if err != nil {
			logging.Warn("connection preview failed", "actor", id, "error", err)
			preview = -1
		}
		fmt.Println()
		output.PrintNodeDetails(os.Stdout, d, preview)
	}
	return nil
}

// connect returns the exploration API with the physics options to use.
func connect(ctx context.Context, opts options) (explorer.API, layout.Options, func(), error) {
	if opts.server != "" {
		client, err := explorer.NewClient(opts.server, nil)
		if err != nil {
			return nil, layout.Options{}, nil, err
		}
		settings, err := client.Settings(ctx)
		if err != nil {
			return nil, layout.Options{}, nil, err
		}
		return client, settings.Physics, func() {}, nil
	}

	gw, err := gateway.Open(ctx, gateway.Options{Backend: gateway.BackendMemory, MemoryDataset: opts.dataset})
	if err != nil {
		return nil, layout.Options{}, nil, err
	}
	physics, _ := layout.Physics(layout.SolverForceAtlas2Based)
	return explore.NewService(gw), physics, func() { _ = gw.Close() }, nil
}

// resolve accepts an actor id or a name; names resolve to the first search hit.
func resolve(ctx context.Context, api explorer.API, nameOrID string) (string, error) {
	if isActorID(nameOrID) {
		return nameOrID, nil
	}
	actors, err := api.Search(ctx, nameOrID)
	if err != nil {
		return "", err
	}
	if len(actors) == 0 {
		return "", apperr.NotFound("no actor named %q", nameOrID)
	}
	return actors[0].ID, nil
}

func isActorID(s string) bool {
	if !strings.HasPrefix(s, "nm") || len(s) < 3 {
		return false
	}
	return strings.Trim(s[2:], "0123456789") == ""
}

func label(ctrl *explorer.Controller, id string) string {
	if d, ok := ctrl.NodeDetails(id); ok {
		return d.Label
	}
	return id
}
