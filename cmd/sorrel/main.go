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

package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sorrel-io/sorrel/base/log"
	"github.com/sorrel-io/sorrel/cmd/version"
	"github.com/sorrel-io/sorrel/common/util"
	"github.com/sorrel-io/sorrel/config"
	"github.com/sorrel-io/sorrel/engine"
	"github.com/sorrel-io/sorrel/eval"
)

var rootCommand = &cobra.Command{
	Use:   "sorrel",
	Short: "Collaborative filtering recommendation engine.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.PersistentFlags().GetBool("version"); showVersion {
			fmt.Println(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var recommendCommand = &cobra.Command{
	Use:   "recommend USER_ID",
	Short: "Print the top recommendations for one user.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng := setup(cmd)
		defer shutdown(eng)
		userId, err := util.ParseInt[int64](args[0])
		if err != nil {
			log.Logger().Fatal("invalid user id", zap.String("user_id", args[0]), zap.Error(err))
		}
		count, _ := cmd.Flags().GetInt("count")
		mode, _ := cmd.Flags().GetString("mode")
		scores, err := eng.GetRecommendations(cmd.Context(), userId, count, mode)
		if err != nil {
			log.Logger().Fatal("failed to recommend", zap.Int64("user_id", userId), zap.Error(err))
		}
		for _, score := range scores {
			source := "personalized"
			if score.Fallback {
				source = "fallback"
			}
			fmt.Printf("%d\t%.4f\t%s\n", score.Id, score.Score, source)
		}
	},
}

var batchCommand = &cobra.Command{
	Use:   "batch",
	Short: "Refresh cached recommendation lists for every user.",
	Run: func(cmd *cobra.Command, args []string) {
		eng := setup(cmd)
		defer shutdown(eng)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if err := eng.Refresh(ctx); err != nil {
			log.Logger().Fatal("failed to refresh recommendations", zap.Error(err))
		}
	},
}

var evaluateCommand = &cobra.Command{
	Use:   "evaluate",
	Short: "Hold out part of the feed and report accuracy and ranking quality.",
	Run: func(cmd *cobra.Command, args []string) {
		eng := setup(cmd)
		defer shutdown(eng)
		conf := loadedConfig
		temporal, _ := cmd.Flags().GetBool("temporal")
		report, err := eng.Evaluate(cmd.Context(), eval.SplitConfig{
			TestFraction: conf.Eval.TestFraction,
			Seed:         conf.Eval.Seed,
			Temporal:     temporal,
		})
		if err != nil {
			log.Logger().Fatal("failed to evaluate", zap.Error(err))
		}
		fmt.Printf("MAE:\t\t%.4f\n", report.MAE)
		fmt.Printf("RMSE:\t\t%.4f\n", report.RMSE)
		fmt.Printf("Precision@%d:\t%.4f\n", conf.Eval.TopK, report.Precision)
		fmt.Printf("Recall@%d:\t%.4f\n", conf.Eval.TopK, report.Recall)
		fmt.Printf("Coverage:\t%.4f\n", report.Coverage)
		fmt.Printf("Diversity:\t%.4f\n", report.Diversity)
		fmt.Printf("Pairs evaluated: %d, skipped: %d, users: %d\n",
			report.PairsEvaluated, report.PairsSkipped, report.UsersEvaluated)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Check the version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.BuildInfo())
	},
}

var loadedConfig *config.Config

// setup builds the engine and loads the rating feed every subcommand works on.
func setup(cmd *cobra.Command) *engine.Engine {
	debug, _ := cmd.Flags().GetBool("debug")
	log.SetLogger(cmd.Flags(), debug)
	var err error
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		log.Logger().Info("load config", zap.String("config", configPath))
		loadedConfig, err = config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
	} else {
		loadedConfig = config.GetDefaultConfig()
	}
	eng, err := engine.New(loadedConfig)
	if err != nil {
		log.Logger().Fatal("failed to create engine", zap.Error(err))
	}
	feedPath, _ := cmd.Flags().GetString("feed")
	if feedPath == "" {
		log.Logger().Fatal("no rating feed, use --feed")
	}
	if err = loadFeed(eng, feedPath); err != nil {
		log.Logger().Fatal("failed to load rating feed",
			zap.String("feed", feedPath), zap.Error(err))
	}
	return eng
}

func shutdown(eng *engine.Engine) {
	if err := eng.Close(); err != nil {
		log.Logger().Error("failed to close engine", zap.Error(err))
	}
	log.CloseLogger()
}

// loadFeed ingests a tab-separated rating feed: user id, item id, value and
// an optional timestamp per line. Lines starting with # are skipped.
func loadFeed(eng *engine.Engine, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return errors.Trace(err)
	}
	pbReader := progressbar.NewReader(file, progressbar.DefaultBytes(stat.Size(), "import ratings"))
	scanner := bufio.NewScanner(&pbReader)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			return errors.NotValidf("line %d: %q", line, text)
		}
		userId, err := util.ParseInt[int64](fields[0])
		if err != nil {
			return errors.Annotatef(err, "line %d", line)
		}
		itemId, err := util.ParseInt[int64](fields[1])
		if err != nil {
			return errors.Annotatef(err, "line %d", line)
		}
		value, err := util.ParseFloat[float64](fields[2])
		if err != nil {
			return errors.Annotatef(err, "line %d", line)
		}
		var timestamp time.Time
		if len(fields) > 3 && fields[3] != "" {
			if timestamp, err = dateparse.ParseAny(fields[3]); err != nil {
				return errors.Annotatef(err, "line %d", line)
			}
		}
		if err = eng.IngestRating(userId, itemId, value, timestamp); err != nil {
			return errors.Annotatef(err, "line %d", line)
		}
	}
	return errors.Trace(scanner.Err())
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().BoolP("version", "v", false, "sorrel version")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.PersistentFlags().StringP("feed", "f", "", "tab-separated rating feed path")
	recommendCommand.Flags().IntP("count", "n", 10, "number of recommendations")
	recommendCommand.Flags().String("mode", "", "override the recommendation mode (user_based or item_based)")
	evaluateCommand.Flags().Bool("temporal", false, "hold out the most recent ratings instead of a random sample")
	rootCommand.AddCommand(recommendCommand, batchCommand, evaluateCommand, versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute command", zap.Error(err))
	}
}
