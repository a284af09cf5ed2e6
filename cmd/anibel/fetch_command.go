package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/bielarusajed/anibel-dl/internal/adapters/anibel"
	"github.com/bielarusajed/anibel-dl/internal/adapters/ffmpeg"
	"github.com/bielarusajed/anibel-dl/internal/adapters/filesink"
	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/buildinfo"
	"github.com/bielarusajed/anibel-dl/internal/config"
	"github.com/bielarusajed/anibel-dl/internal/domain"
)

// newFetchCommand exécute le pipeline localement, sans serveur ni file de jobs.
func newFetchCommand(opts *cliOptions) *cobra.Command {
	var (
		outDir    string
		trackType string
		target    string
		segments  int
		rps       float64
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "fetch <video-id|url>",
		Short: "Télécharge un épisode directement, sans passer par le serveur",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := anibel.VideoIDFromRef(args[0])
			if err != nil {
				return err
			}
			tt, ok := domain.ParseTrackType(trackType)
			if !ok {
				return fmt.Errorf("invalid track type %q", trackType)
			}
			dt, err := domain.ParseDownloadTarget(target)
			if err != nil {
				return err
			}

			cfg, _, err := config.Load(opts.config)
			if err != nil {
				return err
			}
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

			userAgent := cfg.UserAgent
			if userAgent == "" {
				userAgent = buildinfo.UserAgent()
			}
			httpClient := &http.Client{Timeout: cfg.HTTPTimeout()}
			source := anibel.NewClient(httpClient).
				WithVideoAPI(cfg.VideoAPI).
				WithFontsAPI(cfg.FontsAPI).
				WithUserAgent(userAgent)

			info, err := source.Video(ctx, id)
			if err != nil {
				return err
			}

			fetch := app.NewFetcher(httpClient, userAgent)
			pace := rate.NewLimiter(app.PaceLimit(rps), 1)
			orchestrator := app.NewRemuxOrchestrator(app.RemuxOptions{
				Segments:   app.NewSegmentFetcher(fetch, app.NewDynamicLimiter(segments), pace),
				Fetch:      fetch,
				Fonts:      source,
				Muxer:      ffmpeg.NewMuxer(cfg.FFmpeg, logger),
				Sink:       filesink.NewDirSink(outDir),
				StagingDir: cfg.StagingDir,
				Logger:     logger,
			})

			bar := newPhaseBar(os.Stderr, info.Title)
			progress := app.NewProgress(func(s domain.ProgressState) {
				bar.Update(s.Fraction(), s.Phase)
			})
			res, err := orchestrator.Download(ctx, app.DownloadRequest{Video: info, TrackType: tt, Target: dt}, progress)
			bar.Finish()
			if err != nil {
				if ctx.Err() != nil {
					return errors.New("interrupted")
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "saved %s (%s)\n", res.File.Path, humanize.Bytes(uint64(max(res.File.Bytes, 0))))
			for _, w := range res.Warnings {
				fmt.Fprintln(out, "warning:", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Dossier de sortie")
	cmd.Flags().StringVarP(&trackType, "type", "t", "sub", "Piste: sub ou dub")
	cmd.Flags().StringVar(&target, "target", "", `Cible: "video", "720p", "audio", "subtitles" ou "signs"`)
	cmd.Flags().IntVar(&segments, "segments", domain.DefaultSettings().MaxConcurrentDownloads, "Segments en vol")
	cmd.Flags().Float64Var(&rps, "rps", 0, "Requêtes de segments par seconde (0 = illimité)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Logs détaillés")
	return cmd
}
