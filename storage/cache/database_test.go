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
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) SetupTest() {
	err := suite.Database.Ping()
	suite.NoError(err)
	err = suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) TearDownSuite() {
	if suite.Database != nil {
		err := suite.Database.Close()
		suite.NoError(err)
	}
}

func (suite *baseTestSuite) TestMeta() {
	ctx := context.Background()
	// set meta
	err := suite.Database.Set(ctx,
		String(Key(Generation, Recommend, "1"), "2"),
		Integer(Key("meta", "a"), 12),
		Int64(Key("meta", "b"), int64(1)<<40),
		Time(Key("meta", "c"), time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)))
	suite.NoError(err)
	// get meta
	value, err := suite.Database.Get(ctx, Key(Generation, Recommend, "1")).String()
	suite.NoError(err)
	suite.Equal("2", value)
	valInt, err := suite.Database.Get(ctx, Key("meta", "a")).Integer()
	suite.NoError(err)
	suite.Equal(12, valInt)
	valInt64, err := suite.Database.Get(ctx, Key("meta", "b")).Int64()
	suite.NoError(err)
	suite.Equal(int64(1)<<40, valInt64)
	valTime, err := suite.Database.Get(ctx, Key("meta", "c")).Time()
	suite.NoError(err)
	suite.Equal(2026, valTime.Year())
	suite.Equal(time.Month(3), valTime.Month())
	suite.Equal(4, valTime.Day())
	// overwrite
	err = suite.Database.Set(ctx, String(Key("meta", "a"), "13"))
	suite.NoError(err)
	value, err = suite.Database.Get(ctx, Key("meta", "a")).String()
	suite.NoError(err)
	suite.Equal("13", value)
	// delete
	err = suite.Database.Delete(ctx, Key("meta", "a"), Key("meta", "b"))
	suite.NoError(err)
	_, err = suite.Database.Get(ctx, Key("meta", "a")).String()
	suite.True(errors.Is(err, errors.NotFound), err)
	_, err = suite.Database.Get(ctx, Key("meta", "b")).String()
	suite.True(errors.Is(err, ErrObjectNotExist), err)
	// set empty
	err = suite.Database.Set(ctx)
	suite.NoError(err)
	// set duplicate
	err = suite.Database.Set(ctx, String("100", "1"), String("100", "2"))
	suite.NoError(err)
}

func (suite *baseTestSuite) TestScores() {
	ctx := context.Background()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	scores := []Score{
		{Id: 30, Score: 4.8, Timestamp: ts},
		{Id: 10, Score: 4.5, Timestamp: ts},
		{Id: 20, Score: 2.1, Fallback: true, Timestamp: ts},
	}
	// write a subset
	err := suite.Database.SetScores(ctx, Recommend, "110", scores)
	suite.NoError(err)
	// the written order survives a round trip
	returned, err := suite.Database.GetScores(ctx, Recommend, "110")
	suite.NoError(err)
	suite.Equal(len(scores), len(returned))
	for i := range scores {
		suite.Equal(scores[i].Id, returned[i].Id)
		suite.InDelta(scores[i].Score, returned[i].Score, 1e-9)
		suite.Equal(scores[i].Fallback, returned[i].Fallback)
		suite.True(scores[i].Timestamp.Equal(returned[i].Timestamp))
	}
	// overwrite the subset with a shorter list
	err = suite.Database.SetScores(ctx, Recommend, "110", scores[:1])
	suite.NoError(err)
	returned, err = suite.Database.GetScores(ctx, Recommend, "110")
	suite.NoError(err)
	suite.Len(returned, 1)
	suite.Equal(int64(30), returned[0].Id)
	// missing subsets are misses
	_, err = suite.Database.GetScores(ctx, Recommend, "unknown")
	suite.True(errors.Is(err, errors.NotFound), err)
	// delete one subset
	err = suite.Database.SetScores(ctx, Recommend, "111", scores)
	suite.NoError(err)
	err = suite.Database.DeleteScores(ctx, Recommend, "110")
	suite.NoError(err)
	_, err = suite.Database.GetScores(ctx, Recommend, "110")
	suite.True(errors.Is(err, errors.NotFound), err)
	_, err = suite.Database.GetScores(ctx, Recommend, "111")
	suite.NoError(err)
	// delete the whole collection
	err = suite.Database.SetScores(ctx, UserNeighbors, "7", scores)
	suite.NoError(err)
	err = suite.Database.DeleteScores(ctx, Recommend)
	suite.NoError(err)
	_, err = suite.Database.GetScores(ctx, Recommend, "111")
	suite.True(errors.Is(err, errors.NotFound), err)
	// other collections are untouched
	_, err = suite.Database.GetScores(ctx, UserNeighbors, "7")
	suite.NoError(err)
}

func (suite *baseTestSuite) TestEmptyScores() {
	ctx := context.Background()
	// a written empty list is not a miss
	err := suite.Database.SetScores(ctx, Recommend, "200", []Score{})
	suite.NoError(err)
	returned, err := suite.Database.GetScores(ctx, Recommend, "200")
	suite.NoError(err)
	suite.NotNil(returned)
	suite.Empty(returned)
	// nil behaves like an empty list
	err = suite.Database.SetScores(ctx, Recommend, "201", nil)
	suite.NoError(err)
	returned, err = suite.Database.GetScores(ctx, Recommend, "201")
	suite.NoError(err)
	suite.NotNil(returned)
	suite.Empty(returned)
	// overwriting with an empty list empties the subset without removing it
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err = suite.Database.SetScores(ctx, Recommend, "200", []Score{{Id: 1, Score: 1, Timestamp: ts}})
	suite.NoError(err)
	err = suite.Database.SetScores(ctx, Recommend, "200", []Score{})
	suite.NoError(err)
	returned, err = suite.Database.GetScores(ctx, Recommend, "200")
	suite.NoError(err)
	suite.Empty(returned)
	// deleting an empty subset makes it a miss again
	err = suite.Database.DeleteScores(ctx, Recommend, "200")
	suite.NoError(err)
	_, err = suite.Database.GetScores(ctx, Recommend, "200")
	suite.True(errors.Is(err, errors.NotFound), err)
}

func (suite *baseTestSuite) TestPurge() {
	ctx := context.Background()
	err := suite.Database.Set(ctx, String("key", "value"))
	suite.NoError(err)
	err = suite.Database.SetScores(ctx, Recommend, "1", []Score{
		{Id: 1, Score: 1, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	})
	suite.NoError(err)
	err = suite.Database.Purge()
	suite.NoError(err)
	_, err = suite.Database.Get(ctx, "key").String()
	suite.True(errors.Is(err, errors.NotFound), err)
	_, err = suite.Database.GetScores(ctx, Recommend, "1")
	suite.True(errors.Is(err, errors.NotFound), err)
}

func TestKey(t *testing.T) {
	assert.Empty(t, Key())
	assert.Equal(t, "a", Key("a"))
	assert.Equal(t, "a/b/110", Key("a", "b", Id(110)))
}

func TestReturnValue(t *testing.T) {
	broken := &ReturnValue{err: errors.New("broken")}
	_, err := broken.String()
	assert.Error(t, err)
	_, err = broken.Integer()
	assert.Error(t, err)
	_, err = broken.Int64()
	assert.Error(t, err)
	_, err = broken.Time()
	assert.Error(t, err)
	_, err = (&ReturnValue{value: "abc"}).Integer()
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	// empty path means no cache
	database, err := Open("")
	assert.NoError(t, err)
	assert.IsType(t, &NoDatabase{}, database)
	// in-memory backend, timed like every other backend
	database, err = Open(MemoryPrefix)
	assert.NoError(t, err)
	assert.IsType(t, timedDatabase{}, database)
	assert.IsType(t, &Memory{}, database.(timedDatabase).Database)
	assert.NoError(t, database.Close())
	// mongodb needs a database name
	_, err = Open("mongodb://localhost:27017/")
	assert.True(t, errors.Is(err, errors.NotValid), err)
	// unknown scheme
	_, err = Open("unknown://localhost")
	assert.True(t, errors.Is(err, errors.NotSupported), err)
}
