package scenario

import (
	"context"
	"fmt"

	"git.fiblab.net/sim/tripchain/v2/engine/capacity"
	"git.fiblab.net/sim/tripchain/v2/engine/demand"
	"git.fiblab.net/sim/tripchain/v2/engine/destination"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// 场景在MongoDB中的集合后缀，集合名为 {col}_{suffix}
const (
	ZONES_SUFFIX         = "zones"
	COSTS_SUFFIX         = "costs"
	OPPORTUNITIES_SUFFIX = "opportunities"
	GROUPS_SUFFIX        = "groups"
	CHAINS_SUFFIX        = "chains"
)

func download[T any](ctx context.Context, db *mongo.Database, coll string) ([]T, error) {
	cur, err := db.Collection(coll).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	defer cur.Close(ctx)
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll, err)
	}
	return out, nil
}

// LoadMongo 从MongoDB读取场景
func LoadMongo(ctx context.Context, client *mongo.Client, dbName, coll string) (*Scenario, error) {
	db := client.Database(dbName)
	var (
		s   Scenario
		err error
	)
	name := func(suffix string) string { return coll + "_" + suffix }
	if s.Zones, err = download[destination.ZoneInput](ctx, db, name(ZONES_SUFFIX)); err != nil {
		return nil, err
	}
	if s.Costs, err = download[CostInput](ctx, db, name(COSTS_SUFFIX)); err != nil {
		return nil, err
	}
	if s.Opportunities, err = download[capacity.OpportunityInput](ctx, db, name(OPPORTUNITIES_SUFFIX)); err != nil {
		return nil, err
	}
	if s.Groups, err = download[demand.GroupInput](ctx, db, name(GROUPS_SUFFIX)); err != nil {
		return nil, err
	}
	if s.Chains, err = download[demand.ChainInput](ctx, db, name(CHAINS_SUFFIX)); err != nil {
		return nil, err
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", dbName, coll, err)
	}
	return &s, nil
}
