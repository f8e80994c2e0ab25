// Copyright 2026 sorrel Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"time"

	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB cache storage. Score lists live in the documents collection with
// an idx field preserving the written order.
type MongoDB struct {
	client *mongo.Client
	dbName string
}

type mongoDocument struct {
	Collection string    `bson:"collection"`
	Subset     string    `bson:"subset"`
	Idx        int       `bson:"idx"`
	Id         int64     `bson:"id"`
	Score      float64   `bson:"score"`
	Fallback   bool      `bson:"fallback"`
	Timestamp  time.Time `bson:"timestamp"`
}

func (m *MongoDB) Init() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	// list collections
	var hasValues, hasDocuments bool
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, collectionName := range collections {
		switch collectionName {
		case "values":
			hasValues = true
		case "documents":
			hasDocuments = true
		}
	}
	// create collections
	if !hasValues {
		if err = d.CreateCollection(ctx, "values"); err != nil {
			return errors.Trace(err)
		}
	}
	if !hasDocuments {
		if err = d.CreateCollection(ctx, "documents"); err != nil {
			return errors.Trace(err)
		}
	}
	// create index
	_, err = d.Collection("documents").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "collection", Value: 1},
			{Key: "subset", Value: 1},
			{Key: "idx", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return errors.Trace(err)
}

func (m *MongoDB) Ping() error {
	return m.client.Ping(context.Background(), nil)
}

func (m *MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoDB) Purge() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	if _, err := d.Collection("values").DeleteMany(ctx, bson.M{}); err != nil {
		return errors.Trace(err)
	}
	if _, err := d.Collection("documents").DeleteMany(ctx, bson.M{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (m *MongoDB) Set(ctx context.Context, values ...Value) error {
	if len(values) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection("values")
	var models []mongo.WriteModel
	for _, value := range values {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": bson.M{"$eq": value.name}}).
			SetUpdate(bson.M{"$set": bson.M{"_id": value.name, "value": value.value}}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m *MongoDB) Get(ctx context.Context, name string) *ReturnValue {
	c := m.client.Database(m.dbName).Collection("values")
	r := c.FindOne(ctx, bson.M{"_id": bson.M{"$eq": name}})
	if err := r.Err(); err == mongo.ErrNoDocuments {
		return &ReturnValue{err: errors.Annotate(ErrObjectNotExist, name)}
	} else if err != nil {
		return &ReturnValue{err: errors.Trace(err)}
	}
	if raw, err := r.Raw(); err != nil {
		return &ReturnValue{err: errors.Trace(err)}
	} else {
		return &ReturnValue{value: raw.Lookup("value").StringValue()}
	}
}

func (m *MongoDB) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection("values")
	_, err := c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": names}})
	return errors.Trace(err)
}

func (m *MongoDB) SetScores(ctx context.Context, collection, subset string, scores []Score) error {
	c := m.client.Database(m.dbName).Collection("documents")
	models := []mongo.WriteModel{
		mongo.NewDeleteManyModel().SetFilter(bson.M{"collection": collection, "subset": subset}),
	}
	if len(scores) == 0 {
		// a marker document at idx -1 distinguishes a written empty list from
		// an absent subset
		models = append(models, mongo.NewInsertOneModel().SetDocument(mongoDocument{
			Collection: collection,
			Subset:     subset,
			Idx:        -1,
			Timestamp:  time.Unix(0, 0).UTC(),
		}))
	}
	for i, score := range scores {
		models = append(models, mongo.NewInsertOneModel().SetDocument(mongoDocument{
			Collection: collection,
			Subset:     subset,
			Idx:        i,
			Id:         score.Id,
			Score:      score.Score,
			Fallback:   score.Fallback,
			Timestamp:  score.Timestamp,
		}))
	}
	_, err := c.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return errors.Trace(err)
}

func (m *MongoDB) GetScores(ctx context.Context, collection, subset string) ([]Score, error) {
	c := m.client.Database(m.dbName).Collection("documents")
	opt := options.Find().SetSort(bson.M{"idx": 1})
	r, err := c.Find(ctx, bson.M{"collection": collection, "subset": subset}, opt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := make([]Score, 0)
	found := false
	for r.Next(ctx) {
		var doc mongoDocument
		if err = r.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		found = true
		if doc.Idx < 0 {
			// empty-list marker
			continue
		}
		scores = append(scores, Score{
			Id:        doc.Id,
			Score:     doc.Score,
			Fallback:  doc.Fallback,
			Timestamp: doc.Timestamp,
		})
	}
	if err = r.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if !found {
		return nil, errors.Annotate(ErrObjectNotExist, Key(collection, subset))
	}
	return scores, nil
}

func (m *MongoDB) DeleteScores(ctx context.Context, collection string, subsets ...string) error {
	c := m.client.Database(m.dbName).Collection("documents")
	filter := bson.M{"collection": collection}
	if len(subsets) > 0 {
		filter["subset"] = bson.M{"$in": subsets}
	}
	_, err := c.DeleteMany(ctx, filter)
	return errors.Trace(err)
}
