package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"
	"gocloud.dev/blob"
	"gocloud.dev/pubsub"
	_ "gocloud.dev/pubsub/mempubsub"

	"github.com/learking/pathsampling"
	"github.com/learking/pathsampling/checkpoint"
	"github.com/learking/pathsampling/internal/toymodel"
	"github.com/learking/pathsampling/mcmc"
	"github.com/learking/pathsampling/neo4jstore"
	"github.com/learking/pathsampling/runner"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Compare two normal models of the same data, whose Bayes factor is known",
	Long: `demo runs a paired path between two models of normally distributed data
with known variance, which only differ by the mean of the normal prior on their
location. Their marginal likelihoods have a closed form, which demo prints next
to the estimate with the sign convention of the configured scheme: the uniform
scheme estimates log(ML2/ML1), or -log ML of a single model, and the sigmoid
scheme estimates the negation.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	f := demoCmd.Flags()
	f.Float64("mean1", -1, "prior mean of the first model")
	f.Float64("mean2", 1, "prior mean of the second model")
	f.Float64("prior-sigma", 1, "prior standard deviation of both models")
	f.Float64Slice("data", []float64{0.2, 1.8, 0.5, 1.5, 1.1, 0.9, 0.3, 1.7, 1.0, 1.0}, "observations, with unit standard deviation")
	f.Bool("single", false, "run a single-model path over the first model")
	f.String("run", "", "run ID; a random one by default")
	f.String("traces", "", "blob bucket URL receiving the traces, e.g. file:///tmp/traces")
	f.String("checkpoints", "", "directory of a checkpoint database")
	f.Bool("resume", false, "resume every step from its latest checkpoint")
	f.String("events", "", "pubsub topic URL receiving step completions, e.g. mem://steps")
	f.String("neo4j", "", "bolt URL of a Neo4j server receiving the sampled graph")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, _ []string) (err error) {
	ctx := cmd.Context()
	logger := component.Logger(ctx)
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	mean1, _ := f.GetFloat64("mean1")
	mean2, _ := f.GetFloat64("mean2")
	priorSigma, _ := f.GetFloat64("prior-sigma")
	data, _ := f.GetFloat64Slice("data")
	single, _ := f.GetBool("single")
	if len(data) == 0 {
		return errors.New("demo: no data")
	}

	r := &runner.Runner{Config: cfg, Factory: toyFactory}
	r.RunID, _ = f.GetString("run")
	r.Resume, _ = f.GetBool("resume")

	if url, _ := f.GetString("traces"); url != "" {
		bucket, err := blob.OpenBucket(ctx, url)
		if err != nil {
			return fmt.Errorf("open trace bucket: %w", err)
		}
		defer bucket.Close()
		r.Traces = bucket
	}
	if dir, _ := f.GetString("checkpoints"); dir != "" {
		store, openErr := checkpoint.OpenBadger(checkpoint.BadgerOptions{Path: dir, Logger: logger.With("db", "checkpoints")})
		if openErr != nil {
			return openErr
		}
		defer func() {
			if closeErr := store.Close(); err == nil {
				err = closeErr
			}
		}()
		r.Checkpoints = store
	}
	if url, _ := f.GetString("events"); url != "" {
		topic, err := pubsub.OpenTopic(ctx, url)
		if err != nil {
			return fmt.Errorf("open event topic: %w", err)
		}
		defer func() { _ = topic.Shutdown(context.WithoutCancel(ctx)) }()
		r.Events = topic
	}
	if url, _ := f.GetString("neo4j"); url != "" {
		driver, err := neo4j.NewDriverWithContext(url, neo4j.NoAuth())
		if err != nil {
			return fmt.Errorf("open neo4j driver: %w", err)
		}
		defer func() { _ = driver.Close(context.WithoutCancel(ctx)) }()
		if err := neo4jstore.Bootstrap(ctx, driver, "neo4j"); err != nil {
			return err
		}
		r.Graphs = neo4jstore.New(driver, "neo4j")
	}

	m1 := toymodel.NormalModel{PriorMean: mean1, PriorSigma: priorSigma, Sigma: 1, Data: data, StepSize: 0.5}
	m2 := m1
	m2.PriorMean = mean2

	out := cmd.OutOrStdout()
	if single {
		report, err := r.Run(ctx, m1.Graph(), nil)
		if err != nil {
			return err
		}
		want := -m1.LogMarginalLikelihood()
		if cfg.Scheme.Effective(cfg.Alpha) == pathsampling.Sigmoid {
			want = -want
		}
		fmt.Fprintln(out, renderResult(report.Estimate))
		fmt.Fprintf(out, "run %s; closed-form value = %.6g\n", report.RunID, want)
		return nil
	}
	report, err := r.Run(ctx, m1.Graph(), m2.Graph())
	if err != nil {
		return err
	}
	want := m2.LogMarginalLikelihood() - m1.LogMarginalLikelihood()
	if cfg.Scheme.Effective(cfg.Alpha) == pathsampling.Sigmoid {
		want = -want
	}
	fmt.Fprintln(out, renderResult(report.Estimate))
	fmt.Fprintf(out, "run %s; closed-form value = %.6g\n", report.RunID, want)
	return nil
}

func toyFactory(_ context.Context, m runner.Models, src rand.Source) (*mcmc.Chain, error) {
	if m.Paired {
		return toymodel.Paired(m.Graph, m.First, m.Second, src)
	}
	return toymodel.Single(m.Graph, m.First, src)
}
