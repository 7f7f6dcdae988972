package main

import (
	"context"
	"sort"

	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine"
	"git.fiblab.net/sim/tripchain/v2/scenario"
	"github.com/samber/lo"
)

// 汇总日志中输出的OD数
const SUMMARY_TOP_OD = 10

func loadScenario(ctx context.Context, mongoURI string, p *Path) (*scenario.Scenario, error) {
	if p.File != "" {
		return scenario.LoadFile(p.File)
	}
	client := mongoutil.NewClient(mongoURI)
	defer client.Disconnect(context.Background())
	return scenario.LoadMongo(ctx, client, p.GetDb(), p.GetColl())
}

func run(ctx context.Context, cfg *config.Config, mongoURI string, p *Path) (*engine.Result, error) {
	sc, err := loadScenario(ctx, mongoURI, p)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(cfg, sc)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx)
}

func logSummary(res *engine.Result) {
	if res == nil {
		return
	}
	d := res.Diagnostic
	log.Infof("iterations=%d converged=%v unassigned=%d", d.Iterations, d.Converged, d.Unassigned)
	stayHome := lo.CountBy(res.States, func(s engine.GroupState) bool { return s.MotiveSeqID == 0 })
	log.Infof("groups=%d stay_home=%d total_flow=%.1f", len(res.States), stayHome, res.TotalFlow())

	keys := lo.Keys(res.Flows)
	sort.Slice(keys, func(i, j int) bool {
		if res.Flows[keys[i]] != res.Flows[keys[j]] {
			return res.Flows[keys[i]] > res.Flows[keys[j]]
		}
		if keys[i].From != keys[j].From {
			return keys[i].From < keys[j].From
		}
		if keys[i].To != keys[j].To {
			return keys[i].To < keys[j].To
		}
		return keys[i].Motive < keys[j].Motive
	})
	for _, k := range lo.Subset(keys, 0, SUMMARY_TOP_OD) {
		log.Infof("flow %d->%d %s: %.1f", k.From, k.To, k.Motive, res.Flows[k])
	}
	saturated := lo.CountBy(lo.Values(res.Occupation), func(r float64) bool { return r <= 0 })
	log.Infof("sinks=%d saturated=%d", len(res.Occupation), saturated)
}
