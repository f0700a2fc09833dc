package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/store"
	"github.com/nidhogg/nuka-drive/internal/temporal"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	db      string
	agent   string
	at      string
	seed    uint64
	verbose bool
}

// session is one loaded engine plus the store it came from.
type session struct {
	engine *autonomy.Engine
	store  *store.SQLite
	fresh  bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "drivectl",
		Short:         "Inspect and drive an autonomous agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.db, "db", "nuka-drive.db", "SQLite state file")
	pf.StringVar(&opts.agent, "agent", "aurora", "agent ID")
	pf.StringVar(&opts.at, "at", "", "evaluate at this RFC3339 instant instead of now")
	pf.Uint64Var(&opts.seed, "seed", 0, "random seed for sampling (0 = time based)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")

	root.AddCommand(
		newScoreCmd(opts),
		newDecideCmd(opts),
		newFeedbackCmd(opts),
		newAlterCmd(opts),
		newTickCmd(opts),
		newShowCmd(opts),
	)
	return root
}

func (o *options) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func (o *options) clock() (temporal.Clock, error) {
	if o.at == "" {
		return temporal.SystemClock{}, nil
	}
	t, err := time.Parse(time.RFC3339, o.at)
	if err != nil {
		return nil, fmt.Errorf("parse --at: %w", err)
	}
	return temporal.NewFixedClock(t), nil
}

// open loads the agent from the state file, creating a fresh one when the
// file holds no state for it.
func (o *options) open(ctx context.Context) (*session, error) {
	clock, err := o.clock()
	if err != nil {
		return nil, err
	}
	logger := o.logger()
	db, err := store.NewSQLite(o.db, logger)
	if err != nil {
		return nil, err
	}

	seed := o.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	e := autonomy.New(autonomy.Options{
		ID:    o.agent,
		Clock: clock,
		RNG:   rand.New(rand.NewPCG(seed, seed^0x5eed)),
	}, logger)

	s := &session{engine: e, store: db}
	st, err := db.Load(ctx, o.agent)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.fresh = true
	case err != nil:
		db.Close()
		return nil, err
	default:
		if err := e.RestoreState(st); err != nil {
			db.Close()
			return nil, fmt.Errorf("restore %s: %w", o.agent, err)
		}
	}
	return s, nil
}

func (s *session) save(ctx context.Context) error {
	return s.store.Save(ctx, s.engine.State())
}

func (s *session) close() { s.store.Close() }
