/*************************************************************************
* Copyright 2017 Gravwell, Inc. All rights reserved.
* Contact: <legal@gravwell.io>
*
* This software may be modified and distributed under the terms of the
* BSD 2-clause license. See the LICENSE file for details.
**************************************************************************/

package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/vtselfa/manager-sub000/internal/cachedriver"
	"github.com/vtselfa/manager-sub000/internal/catconfig"
	"github.com/vtselfa/manager-sub000/internal/cluster"
	"github.com/vtselfa/manager-sub000/internal/control"
	"github.com/vtselfa/manager-sub000/internal/corelog"
	"github.com/vtselfa/manager-sub000/internal/hostinfo"
	"github.com/vtselfa/manager-sub000/internal/launcher"
	"github.com/vtselfa/manager-sub000/internal/perfbackend"
	"github.com/vtselfa/manager-sub000/internal/policy"
	"github.com/vtselfa/manager-sub000/internal/scheduler"
	"github.com/vtselfa/manager-sub000/internal/stats"
	"github.com/vtselfa/manager-sub000/internal/task"
	"github.com/vtselfa/manager-sub000/internal/waydist"
	"github.com/vtselfa/manager-sub000/utils"
	"github.com/vtselfa/manager-sub000/version"
)

const (
	defConfigLoc  = `/opt/catsupervisord/etc/catsupervisord.yaml`
	defResctrlDir = `/sys/fs/resctrl`
)

var (
	cfgFlag     = flag.String("config-override", "", "Override config file path")
	resctrlFlag = flag.String("resctrl-dir", defResctrlDir, "Path to the resctrl mount point")
	logFlag     = flag.String("log-file", "", "Path to the log file; empty discards logging")
	levelFlag   = flag.String("log-level", "INFO", "Minimum log level (DEBUG, INFO, WARN, ERROR)")
	ver         = flag.Bool("version", false, "Print version information and exit")

	cfgFile string
)

func init() {
	flag.Parse()
	if *ver {
		version.PrintVersion(os.Stdout)
		os.Exit(0)
	}
	cfgFile = defConfigLoc
	if *cfgFlag != `` {
		cfgFile = *cfgFlag
	}
}

func main() {
	cfg, err := catconfig.Load(cfgFile)
	if err != nil {
		log.Fatal("Failed to load config file ", cfgFile, ": ", err)
	}

	lg := corelog.NewDiscardLogger()
	if *logFlag != "" {
		lg, err = corelog.NewFile(*logFlag)
		if err != nil {
			log.Fatal("Failed to open log file: ", err)
		}
		defer lg.Close()
	}
	if err := lg.SetLevelString(*levelFlag); err != nil {
		log.Fatal("Invalid log level: ", err)
	}

	cpus, err := hostinfo.AllowedCPUs()
	if err != nil {
		lg.Fatal("failed to discover allowed CPUs", corelog.KVErr(err))
	}

	driver := cachedriver.NewResctrlDriver(*resctrlFlag)

	tasks := buildTasks(cfg.Tasks)
	pol := buildPolicy(cfg, driver, lg)
	sched := buildScheduler(cfg, cpus)

	loop := &control.Loop{
		Tasks:     tasks,
		Launcher:  launcher.Launcher{},
		Backend:   perfbackend.NewLinuxBackend(),
		Driver:    driver,
		Policy:    pol,
		Scheduler: sched,
		Store:     stats.NewStore(5),
		Interval:  time.Duration(cfg.IntervalMS) * time.Millisecond,
		TimeMax:   time.Duration(cfg.TimeMaxS) * time.Second,
		Log:       lg,
		Quit:      quitChannel(),
	}

	lg.Infof("starting catsupervisord with %d tasks", len(tasks))
	if err := loop.Init(); err != nil {
		lg.Fatal("failed to initialize control loop", corelog.KVErr(err))
	}
	if err := loop.Run(); err != nil {
		lg.Fatal("control loop exited with an error", corelog.KVErr(err))
	}
	lg.Infof("catsupervisord shut down cleanly")
}

func buildTasks(cfgs []catconfig.TaskConfig) []*task.Task {
	out := make([]*task.Task, 0, len(cfgs))
	for _, tc := range cfgs {
		out = append(out, task.New(tc.Cmd, tc.Stdout, tc.Stdin, tc.Stderr, tc.SkelDir, tc.MaxInstr, tc.Batch))
	}
	return out
}

func buildPolicy(cfg *catconfig.Config, driver cachedriver.Driver, lg *corelog.Logger) *policy.Policy {
	if cfg.CatPolicy.Kind == "" || cfg.CatPolicy.Kind == "none" {
		return nil
	}

	rng := rand.New(rand.NewSource(1))
	var clusterer policy.Clusterer
	if cfg.CatPolicy.NumClusters > 0 {
		clusterer = policy.FixedKClusterer{K: cfg.CatPolicy.NumClusters, Rng: rng}
	} else {
		clusterer = policy.AdaptiveKClusterer{
			MaxK:  cfg.CatPolicy.MaxClusters,
			Index: cluster.QualityIndex(cfg.CatPolicy.EvalClusters),
			Rng:   rng,
		}
	}

	minWays := uint32(cfg.COS.MinCBMBits)
	if minWays == 0 {
		minWays = 2
	}

	var dist waydist.Distributor
	if cfg.CatPolicy.Kind == "clustered_optimal" {
		dist = waydist.Parametric{
			Model:          waydist.Model(cfg.CatPolicy.Model),
			MinWays:        minWays,
			AlternateSides: cfg.CatPolicy.AlternateSides,
		}
	} else {
		dist = waydist.DivideN{N: cfg.CatPolicy.DivideN, MinWays: minWays}
	}

	return &policy.Policy{
		Every:     cfg.CatPolicy.Every,
		Metric:    cfg.CatPolicy.Metric,
		Invert:    cfg.CatPolicy.InvertMetric,
		Clusterer: clusterer,
		WayDist:   dist,
		Driver:    driver,
		Log:       lg,
	}
}

func buildScheduler(cfg *catconfig.Config, cpus []int) scheduler.Scheduler {
	switch cfg.Sched.Kind {
	case "random":
		return scheduler.Random{CPUs: cpus, Rng: rand.New(rand.NewSource(1))}
	case "fair":
		return &scheduler.Fair{
			CPUs:   cpus,
			Store:  stats.NewStore(5),
			Metric: cfg.CatPolicy.Metric,
		}
	default:
		return scheduler.PassThrough{CPUs: cpus}
	}
}

// quitChannel adapts utils.GetQuitChannel's os.Signal channel to the
// closed-channel idiom control.Loop expects.
func quitChannel() <-chan struct{} {
	sig := utils.GetQuitChannel()
	done := make(chan struct{})
	go func() {
		<-sig
		close(done)
	}()
	return done
}
