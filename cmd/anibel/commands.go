package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bielarusajed/anibel-dl/internal/adapters/anibel"
	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/buildinfo"
	"github.com/bielarusajed/anibel-dl/internal/domain"
)

type healthView struct {
	Status   string            `json:"status"`
	Workers  *int              `json:"workers,omitempty"`
	Segments *app.LimiterStats `json:"segments,omitempty"`
}

func newHealthCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Vérifie que le serveur répond",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var h healthView
			if err := opts.client().get(cmd.Context(), "/health", &h); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, h)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "status:", h.Status)
			if h.Workers != nil {
				fmt.Fprintln(out, "workers:", *h.Workers)
			}
			if h.Segments != nil {
				fmt.Fprintf(out, "segments: %d/%d in flight, %d waiting\n", h.Segments.InFlight, h.Segments.Limit, h.Segments.Waiting)
			}
			return nil
		},
	}
}

func newVersionCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Versions du client et du serveur",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			local := buildinfo.Current()
			var remote buildinfo.Info
			err := opts.client().get(cmd.Context(), "/version", &remote)
			if opts.json {
				view := map[string]any{"client": local}
				if err == nil {
					view["server"] = remote
				}
				return writeJSON(cmd, view)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "client:", local.String())
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "server: unreachable:", err)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "server:", remote.String())
			return nil
		},
	}
}

func newInfoCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <video-id|url>",
		Short: "Métadonnées d'une vidéo (pistes, sous-titres)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := anibel.VideoIDFromRef(args[0])
			if err != nil {
				return err
			}
			var v app.VideoDTO
			if err := opts.client().get(cmd.Context(), "/videos/"+id, &v); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, v)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "id:      ", v.VideoID)
			fmt.Fprintln(out, "title:   ", v.Title)
			fmt.Fprintln(out, "playlist:", v.PlaylistURL)
			types := make([]string, 0, len(v.TrackTypes))
			for _, t := range v.TrackTypes {
				types = append(types, string(t))
			}
			fmt.Fprintln(out, "tracks:  ", strings.Join(types, ", "))

			rows := make([][]string, 0, len(v.Subtitles))
			for _, s := range v.Subtitles {
				rows = append(rows, []string{s.Path, strconv.Itoa(len(s.Fonts))})
			}
			if len(rows) > 0 {
				renderTable(out, []string{"Subtitle", "Fonts"}, rows, 2)
			}
			return nil
		},
	}
}

func newSettingsCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Lit ou modifie les réglages du serveur",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s domain.Settings
			if err := opts.client().get(cmd.Context(), "/settings", &s); err != nil {
				return err
			}
			return writeJSON(cmd, s)
		},
	}

	var (
		destination string
		workers     int
		window      int
		rps         float64
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Met à jour les réglages indiqués (les autres sont conservés)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := map[string]any{}
			flags := cmd.Flags()
			if flags.Changed("destination") {
				patch["destination"] = destination
			}
			if flags.Changed("workers") {
				patch["maxWorkers"] = workers
			}
			if flags.Changed("segments") {
				patch["maxConcurrentDownloads"] = window
			}
			if flags.Changed("rps") {
				patch["segmentRequestsPerSecond"] = rps
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update")
			}
			var updated domain.Settings
			if err := opts.client().put(cmd.Context(), "/settings", patch, &updated); err != nil {
				return err
			}
			return writeJSON(cmd, updated)
		},
	}
	set.Flags().StringVar(&destination, "destination", "", "Dossier de destination")
	set.Flags().IntVar(&workers, "workers", 0, "Jobs en parallèle")
	set.Flags().IntVar(&window, "segments", 0, "Segments en vol (fenêtre partagée)")
	set.Flags().Float64Var(&rps, "rps", 0, "Requêtes de segments par seconde (0 = illimité)")
	cmd.AddCommand(set)
	return cmd
}
