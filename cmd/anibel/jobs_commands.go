package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bielarusajed/anibel-dl/internal/adapters/anibel"
	"github.com/bielarusajed/anibel-dl/internal/app"
	"github.com/bielarusajed/anibel-dl/internal/domain"
)

func newDownloadCommand(opts *cliOptions) *cobra.Command {
	var (
		trackType string
		target    string
		wait      bool
	)
	cmd := &cobra.Command{
		Use:   "download <video-id|url>",
		Short: "Met un téléchargement d'épisode en file sur le serveur",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := anibel.VideoIDFromRef(args[0])
			if err != nil {
				return err
			}
			client := opts.client()
			var job app.JobDTO
			req := app.EnqueueDownloadRequest{Type: trackType, Target: target}
			if err := client.post(cmd.Context(), "/videos/"+id+"/downloads", req, &job); err != nil {
				return err
			}
			if !wait {
				if opts.json {
					return writeJSON(cmd, job)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "queued job", job.ID)
				return nil
			}
			return waitJob(cmd, opts, client, job.ID)
		},
	}
	cmd.Flags().StringVarP(&trackType, "type", "t", "sub", "Piste: sub ou dub")
	cmd.Flags().StringVar(&target, "target", "", `Cible: "video", "720p", "audio", "subtitles" ou "signs"`)
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Attendre la fin du job")
	return cmd
}

func newJobsCommand(opts *cliOptions) *cobra.Command {
	var (
		limit  int
		active bool
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Liste les jobs récents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/jobs?limit=" + strconv.Itoa(limit)
			if active {
				path += "&state=queued,running,muxing"
			}
			var jobs []app.JobDTO
			if err := opts.client().get(cmd.Context(), path, &jobs); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, jobs)
			}
			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				rows = append(rows, []string{
					j.ID,
					j.Type,
					string(j.State),
					fmt.Sprintf("%.0f%%", j.Progress*100),
					j.Phase,
					humanize.Time(j.UpdatedAt),
					j.ErrorCode,
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "Type", "State", "Progress", "Phase", "Updated", "Error"}, rows, 4)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Nombre de jobs")
	cmd.Flags().BoolVarP(&active, "active", "a", false, "Seulement les jobs en file ou en cours")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Détail d'un job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job app.JobDTO
			if err := opts.client().get(cmd.Context(), "/jobs/"+args[0], &job); err != nil {
				return err
			}
			return writeJSON(cmd, job)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Annule un job en file ou en cours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var job app.JobDTO
			if err := opts.client().post(cmd.Context(), "/jobs/"+args[0]+"/cancel", nil, &job); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, job)
			}
			fmt.Fprintln(cmd.OutOrStdout(), job.ID, job.State)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "wait <job-id>",
		Short: "Suit un job jusqu'à son état final",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return waitJob(cmd, opts, opts.client(), args[0])
		},
	})
	return cmd
}

// waitJob interroge le job jusqu'à un état terminal; une erreur est renvoyée si le job n'a pas abouti.
func waitJob(cmd *cobra.Command, opts *cliOptions, client *apiClient, id string) error {
	bar := newPhaseBar(os.Stderr, id)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		var job app.JobDTO
		if err := client.get(cmd.Context(), "/jobs/"+id, &job); err != nil {
			return err
		}
		bar.Update(job.Progress, job.Phase)
		if job.State.IsTerminal() {
			bar.Finish()
			return reportJob(cmd, opts, job)
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func reportJob(cmd *cobra.Command, opts *cliOptions, job app.JobDTO) error {
	if opts.json {
		if err := writeJSON(cmd, job); err != nil {
			return err
		}
	}
	switch job.State {
	case domain.JobCompleted:
		if opts.json {
			return nil
		}
		var res app.DownloadResult
		if len(job.Result) > 0 && json.Unmarshal(job.Result, &res) == nil && res.File.Path != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", res.File.Path, humanize.Bytes(uint64(max(res.File.Bytes, 0))))
			for _, w := range res.Warnings {
				fmt.Fprintln(cmd.OutOrStdout(), "warning:", w)
			}
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), job.ID, "completed")
		return nil
	case domain.JobCanceled:
		return fmt.Errorf("job %s canceled", job.ID)
	default:
		return fmt.Errorf("job %s failed: %s (%s)", job.ID, job.Error, job.ErrorCode)
	}
}

func newDownloadsCommand(opts *cliOptions) *cobra.Command {
	var (
		videoRef string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "downloads",
		Short: "Historique des fichiers téléchargés",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/downloads?limit=" + strconv.Itoa(limit)
			if videoRef != "" {
				id, err := anibel.VideoIDFromRef(videoRef)
				if err != nil {
					return err
				}
				path = "/videos/" + id + "/downloads?limit=" + strconv.Itoa(limit)
			}
			var items []app.DownloadDTO
			if err := opts.client().get(cmd.Context(), path, &items); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, items)
			}
			rows := make([][]string, 0, len(items))
			for _, d := range items {
				rows = append(rows, []string{
					d.VideoID,
					d.Title,
					d.Target,
					d.Filename,
					humanize.Bytes(uint64(max(d.Bytes, 0))),
					humanize.Time(d.CreatedAt),
				})
			}
			renderTable(cmd.OutOrStdout(), []string{"Video", "Title", "Target", "File", "Size", "When"}, rows, 5)
			return nil
		},
	}
	cmd.Flags().StringVar(&videoRef, "video", "", "Filtrer sur une vidéo (id ou URL)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Nombre d'entrées")
	return cmd
}
