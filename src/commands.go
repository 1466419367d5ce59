package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacokyle01/chess-analysis/src/models"
	"github.com/jacokyle01/chess-analysis/src/primaryserver"
	"github.com/jacokyle01/chess-analysis/src/review"
	"github.com/jacokyle01/chess-analysis/src/rules"
	"github.com/jacokyle01/chess-analysis/src/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the primary server, plus a local worker unless disabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		if noWorker, _ := cmd.Flags().GetBool("no-worker"); noWorker {
			cfg.Server.LocalWorker = false
		}

		srv := primaryserver.NewServer(primaryserver.Options{
			QueueSize:    cfg.Server.QueueSize,
			DefaultDepth: cfg.Engine.Depth,
			ReviewDepth:  cfg.Review.Depth,
			Retention:    cfg.Server.Retention,
			Review:       cfg.Review.Config,
			Logger:       logger,
		})

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return srv.StartServer(ctx, cfg.Server.Addr)
		})
		if cfg.Server.LocalWorker {
			g.Go(func() error {
				eng, err := startEngine(ctx)
				if err != nil {
					return fmt.Errorf("local worker: %w", err)
				}
				defer stopEngine(eng)
				w := worker.NewClient(localURL(cfg.Server.Addr), eng, worker.Options{
					PollInterval: cfg.Worker.PollInterval,
					Logger:       logger,
				})
				return w.WorkLoop(ctx)
			})
		}
		return g.Wait()
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Pull jobs from a primary server and analyze them on the local engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		if url, _ := cmd.Flags().GetString("server"); url != "" {
			cfg.Worker.ServerURL = url
		}
		eng, err := startEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer stopEngine(eng)

		w := worker.NewClient(cfg.Worker.ServerURL, eng, worker.Options{
			PollInterval: cfg.Worker.PollInterval,
			Logger:       logger,
		})
		return w.WorkLoop(cmd.Context())
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [fen]",
	Short: "Print the engine's top lines for a position",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fen := rules.StartFEN
		if len(args) == 1 {
			fen = args[0]
		}
		depth, _ := cmd.Flags().GetInt("depth")
		if depth == 0 {
			depth = cfg.Engine.Depth
		}
		lines, _ := cmd.Flags().GetInt("lines")

		eng, err := startEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer stopEngine(eng)

		res, err := eng.TopMoves(cmd.Context(), fen, lines, depth)
		if err != nil {
			return err
		}
		fmt.Printf("bestmove %s\n", res.BestMove)
		for _, l := range res.Lines {
			fmt.Printf("%d. %-7s depth %-3d %s\n", l.MultiPV, l.Score, l.Depth, strings.Join(l.PV, " "))
		}
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <game.pgn>",
	Short: "Classify every move of a PGN game",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		fen, moves, err := rules.ParsePGN(f)
		f.Close()
		if err != nil {
			return err
		}
		depth, _ := cmd.Flags().GetInt("depth")
		if depth == 0 {
			depth = cfg.Review.Depth
		}

		eng, err := startEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer stopEngine(eng)

		r := review.New(eng, rules.Service{}, cfg.Review.Config, logger)
		summary, err := r.Review(cmd.Context(), fen, moves, depth, func(p models.ReviewProgress) {
			if p.Move == nil {
				return
			}
			m := p.Move
			dots := "."
			if !m.White {
				dots = "..."
			}
			fmt.Printf("%3d%s %-7s %-7s loss %-4d %s\n", m.MoveNumber, dots, m.SAN, m.Eval, m.Loss, m.Classification)
		})
		if err != nil {
			return err
		}

		for _, side := range []struct {
			name string
			s    models.SideSummary
		}{{"White", summary.White}, {"Black", summary.Black}} {
			fmt.Printf("%s: accuracy %.1f%%, acpl %.0f, rating %d\n", side.name, side.s.Accuracy, side.s.AverageLoss, side.s.PerformanceRating)
			for _, c := range models.Classifications {
				fmt.Printf("  %-10s %d\n", c, side.s.Counts[c])
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")
	serveCmd.Flags().Bool("no-worker", false, "do not run a local engine worker")
	workerCmd.Flags().String("server", "", "primary server URL, overrides worker.server_url")
	analyzeCmd.Flags().Int("depth", 0, "search depth, defaults to engine.depth")
	analyzeCmd.Flags().Int("lines", 3, "number of principal variations")
	reviewCmd.Flags().Int("depth", 0, "search depth, defaults to review.depth")
}
