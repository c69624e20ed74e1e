// Command swarmsim drives an in-process simulated swarm through the
// membership engine and reports convergence. It is the engine's only
// outer surface in this repository; it deliberately does not reach into
// the real ARGoS/robot-runtime IPC path (out of scope, spec §1/§9).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/NVIDIA/swarmcore/cmn"
	"github.com/NVIDIA/swarmcore/cmn/nlog"
	"github.com/NVIDIA/swarmcore/core/meta"
	"github.com/NVIDIA/swarmcore/sim"
)

const (
	appName  = "swarmsim"
	appUsage = "run a simulated gossip swarm-membership run and report convergence"
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = appUsage
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "robots", Value: 10, Usage: "number of simulated robots"},
		cli.StringFlag{Name: "topology", Value: "ring", Usage: "placement: ring | full"},
		cli.StringFlag{Name: "scenario", Value: "consensus", Usage: "scenario: consensus | adding | removing"},
		cli.IntFlag{Name: "packet-size", Value: 10, Usage: "fixed wire frame length P, in bytes"},
		cli.IntFlag{Name: "lamport-width", Value: 8, Usage: "lamport clock width: 8 or 32"},
		cli.Float64Flag{Name: "drop", Value: 0, Usage: "per-hop packet drop probability q"},
		cli.IntFlag{Name: "max-steps", Value: 20000, Usage: "give up after this many host steps"},
		cli.IntFlag{Name: "seed", Value: 1, Usage: "PRNG seed for the run"},
		cli.BoolFlag{Name: "quiet", Usage: "suppress info-level logging"},
		cli.IntFlag{Name: "dump-robot", Value: -1, Usage: "print this robot's final swarmlist as JSON (-1 = none)"},
		cli.BoolFlag{Name: "dump-stats", Usage: "print the dumped robot's packet/entry counters alongside its swarmlist"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	nlog.SetLevel(c.Bool("quiet"))

	cfg := cmn.DefaultConfig()
	cfg.PacketSize = c.Int("packet-size")
	cfg.LamportWidth = c.Int("lamport-width")
	cfg.PacketDropProbability = c.Float64("drop")
	if err := cfg.Validate(); err != nil {
		return err
	}

	n := c.Int("robots")
	var topo sim.Topology
	switch c.String("topology") {
	case "ring":
		topo = sim.NewRing(n)
	case "full":
		topo = sim.NewFullyConnected(n)
	default:
		return fmt.Errorf("unknown topology %q (want ring|full)", c.String("topology"))
	}

	scenario, err := buildScenario(c.String("scenario"), n)
	if err != nil {
		return err
	}

	h, err := sim.NewHarness(cfg, topo, scenario, uint64(c.Int("seed")))
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	converged, steps, err := h.Run(context.Background(), uint64(c.Int("max-steps")))
	if err != nil {
		return err
	}

	if id := c.Int("dump-robot"); id >= 0 {
		if sl, ok := h.Robot(meta.RobotID(id)); ok {
			dump, derr := sl.DumpJSON()
			if derr != nil {
				return derr
			}
			fmt.Println(dump)
		}
		if c.Bool("dump-stats") {
			if counters, ok := h.Stats(meta.RobotID(id)); ok {
				for name, val := range counters {
					fmt.Printf("%s=%d\n", name, val)
				}
			}
			if sl, ok := h.Robot(meta.RobotID(id)); ok {
				lc := sl.Stats()
				fmt.Printf("entries.created=%d entries.refreshed=%d entries.reactivated=%d "+
					"entries.evicted=%d entries.dropped=%d entries.rejected=%d\n",
					lc.Created, lc.Refreshed, lc.Reactivated, lc.Evicted, lc.Dropped, lc.Rejected)
			}
		}
	}

	if converged {
		fmt.Printf("%s: %d robots converged after %d steps (run %s)\n", green("OK"), n, steps, h.RunID())
		return nil
	}
	fmt.Printf("%s: %d robots did not converge within %d steps (run %s)\n", red("TIMEOUT"), n, steps, h.RunID())
	return cli.NewExitError("convergence deadline exceeded", 1)
}

func buildScenario(name string, n int) (sim.Scenario, error) {
	switch name {
	case "consensus":
		return sim.NewConsensusScenario(), nil
	case "adding":
		return sim.NewAddingScenario(meta.RobotID(n+1), 10), nil
	case "removing":
		return sim.NewRemovingScenario(meta.RobotID(1), 10), nil
	default:
		return sim.Scenario{}, fmt.Errorf("unknown scenario %q (want consensus|adding|removing)", name)
	}
}
