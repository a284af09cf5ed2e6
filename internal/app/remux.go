package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bielarusajed/anibel-dl/internal/domain"
	"github.com/bielarusajed/anibel-dl/internal/ports"
)

// Noms fixes dans la zone de staging.
const (
	stagingVideoDir  = "video"
	stagingAudioDir  = "audio"
	stagingFontsDir  = "fonts"
	stagedSubtitles  = "subtitles.ass"
	stagedVideo      = "video.mp4"
	stagedAudio      = "audio.m4a"
	stagedOutput     = "output.mkv"
	mimeMatroska     = "video/x-matroska"
	mimeAudioMP4     = "audio/mp4"
	mimeSubStationV4 = "text/x-ssa"
)

type DownloadRequest struct {
	Video     domain.VideoInfo
	TrackType domain.TrackType
	Target    domain.DownloadTarget
	// Sink remplace le sink par défaut de l'orchestrateur (destination propre au job).
	Sink ports.FileSink
}

type DownloadResult struct {
	OpID      string           `json:"opId"`
	VideoID   string           `json:"videoId"`
	Title     string           `json:"title,omitempty"`
	File      ports.SavedFile  `json:"file"`
	Target    string           `json:"target"`
	TrackType domain.TrackType `json:"trackType,omitempty"`
	Height    int              `json:"height,omitempty"`
	Language  string           `json:"language,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
}

type RemuxOptions struct {
	Manifests  *ManifestClient
	Segments   *SegmentFetcher
	Fetch      Fetcher
	Fonts      ports.FontResolver
	Muxer      ports.Muxer
	Sink       ports.FileSink
	StagingDir string
	Logger     zerolog.Logger
	NewOpID    func() string
}

// RemuxOrchestrator enchaîne manifestes, sélection, fetch, staging, mux et remise du fichier.
// Une opération = une zone de staging privée, détruite quoi qu'il arrive.
type RemuxOrchestrator struct {
	manifests  *ManifestClient
	segments   *SegmentFetcher
	fetch      Fetcher
	fonts      ports.FontResolver
	muxer      ports.Muxer
	sink       ports.FileSink
	stagingDir string
	logger     zerolog.Logger
	newOpID    func() string
}

func NewRemuxOrchestrator(opts RemuxOptions) *RemuxOrchestrator {
	o := &RemuxOrchestrator{
		manifests:  opts.Manifests,
		segments:   opts.Segments,
		fetch:      opts.Fetch,
		fonts:      opts.Fonts,
		muxer:      opts.Muxer,
		sink:       opts.Sink,
		stagingDir: opts.StagingDir,
		logger:     opts.Logger.With().Str("component", "remux").Logger(),
		newOpID:    opts.NewOpID,
	}
	if o.fetch.Client == nil {
		o.fetch = NewFetcher(nil, "")
	}
	if o.manifests == nil {
		o.manifests = NewManifestClient(o.fetch)
	}
	if o.segments == nil {
		o.segments = NewSegmentFetcher(o.fetch, nil, nil)
	}
	if o.newOpID == nil {
		o.newOpID = func() string { return uuid.NewString() }
	}
	return o
}

// operation porte l'état d'un seul Download.
type operation struct {
	o        *RemuxOrchestrator
	id       string
	req      DownloadRequest
	progress *Progress
	logger   zerolog.Logger
	phase    domain.Phase
	sink     ports.FileSink
	warnings []string
	started  time.Time
}

func (op *operation) enter(phase domain.Phase) {
	op.phase = phase
	op.progress.Report(0, string(phase))
	op.logger.Debug().Str("phase", string(phase)).Msg("phase")
}

func (op *operation) step(n int) {
	op.progress.Report(n, "")
}

func (op *operation) warn(err error) {
	op.warnings = append(op.warnings, err.Error())
	op.logger.Warn().Err(err).Str("phase", string(op.phase)).Msg("download warning")
}

// Download exécute le pipeline complet pour la cible demandée.
// progress peut être nil. En cas d'échec l'erreur est un *CodedError dont le message nomme la phase.
func (o *RemuxOrchestrator) Download(ctx context.Context, req DownloadRequest, progress *Progress) (DownloadResult, error) {
	op := &operation{
		o:        o,
		id:       o.newOpID(),
		req:      req,
		progress: progress,
		phase:    domain.PhaseIdle,
		sink:     req.Sink,
		started:  time.Now(),
	}
	if op.sink == nil {
		op.sink = o.sink
	}
	op.logger = o.logger.With().Str("op_id", op.id).Str("video_id", req.Video.VideoID).Str("target", req.Target.String()).Logger()

	if req.Target.Kind == "" {
		req.Target = domain.VideoTarget(req.Target.Height)
		op.req.Target = req.Target
	}
	if req.Target.Kind == domain.TargetVideo || req.Target.Kind == domain.TargetAudioOnly {
		if _, ok := domain.ParseTrackType(string(req.TrackType)); !ok {
			return DownloadResult{}, invalidParams(fmt.Sprintf("unknown track type %q", req.TrackType))
		}
	}
	if op.sink == nil {
		return DownloadResult{}, invalidParams("no destination configured")
	}

	var (
		res DownloadResult
		err error
	)
	switch req.Target.Kind {
	case domain.TargetVideo:
		res, err = op.runVideo(ctx)
	case domain.TargetAudioOnly:
		res, err = op.runAudioOnly(ctx)
	case domain.TargetSubtitles, domain.TargetSignage:
		res, err = op.runSubtitleFile(ctx)
	default:
		return DownloadResult{}, invalidParams(fmt.Sprintf("unknown download target %q", req.Target.Kind))
	}
	if err != nil {
		return DownloadResult{}, op.fail(err)
	}

	op.enter(domain.PhaseDone)
	res.OpID = op.id
	res.VideoID = req.Video.VideoID
	res.Title = req.Video.Title
	res.Target = req.Target.String()
	res.Warnings = op.warnings
	op.logger.Info().
		Str("file", res.File.Path).
		Str("size", humanize.Bytes(uint64(max(res.File.Bytes, 0)))).
		Dur("elapsed", time.Since(op.started)).
		Int("warnings", len(op.warnings)).
		Msg("download completed")
	return res, nil
}

func (op *operation) fail(err error) error {
	failedIn := op.phase
	op.progress.Reset()
	op.logger.Error().Err(err).Str("phase", string(failedIn)).Msg("download failed")

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded
	}
	return &CodedError{
		Code:    errorCode(err),
		Message: fmt.Sprintf("download failed while %s", strings.ReplaceAll(string(failedIn), "_", " ")),
		Err:     err,
	}
}

// resolveStreams charge le master, choisit vidéo et audio et charge leurs playlists media.
// withVideo=false: seule la piste audio est chargée.
func (op *operation) resolveStreams(ctx context.Context, withVideo bool) (video, audio domain.Rendition, videoURL, audioURL string, err error) {
	op.enter(domain.PhaseManifestResolving)
	masterURL, err := ManifestURL(op.req.Video)
	if err != nil {
		return
	}
	master, err := op.o.manifests.FetchMaster(ctx, masterURL)
	if err != nil {
		return
	}

	op.enter(domain.PhaseRenditionSelecting)
	vr, ok := SelectVideo(master, op.req.Target)
	if !ok {
		err = fmt.Errorf("%w: master playlist has no renditions", domain.ErrNoPlayableRendition)
		return
	}
	ar, ok := SelectAudio(vr, op.req.TrackType)
	if !ok || strings.TrimSpace(ar.URI) == "" {
		err = fmt.Errorf("%w: no %s audio track", domain.ErrAudioTrackNotFound, op.req.TrackType)
		return
	}

	if withVideo {
		if strings.TrimSpace(vr.URI) == "" {
			err = fmt.Errorf("%w: rendition has no uri", domain.ErrNoPlayableRendition)
			return
		}
		if videoURL, err = resolveRef(masterURL, vr.URI); err != nil {
			return
		}
		var g domain.ManifestGraph
		if g, err = op.o.manifests.FetchMedia(ctx, videoURL); err != nil {
			return
		}
		video = g.Media
		video.URI, video.Resolution, video.Bandwidth, video.GroupID = vr.URI, vr.Resolution, vr.Bandwidth, vr.GroupID
	}

	if audioURL, err = resolveRef(masterURL, ar.URI); err != nil {
		return
	}
	g, err := op.o.manifests.FetchMedia(ctx, audioURL)
	if err != nil {
		return
	}
	audio = g.Media
	audio.URI, audio.GroupID, audio.Language, audio.Name = ar.URI, ar.GroupID, ar.Language, ar.Name
	video.Audio = nil

	op.logger.Info().
		Int("height", vr.Height()).
		Str("language", ar.Language).
		Int("video_segments", len(video.Segments)).
		Int("audio_segments", len(audio.Segments)).
		Msg("renditions selected")
	return video, audio, videoURL, audioURL, nil
}

func (op *operation) runVideo(ctx context.Context) (DownloadResult, error) {
	video, audio, videoURL, audioURL, err := op.resolveStreams(ctx, true)
	if err != nil {
		return DownloadResult{}, err
	}

	op.enter(domain.PhaseAssetResolving)
	subtitle, hasSubtitle := ResolveSubtitles(op.req.Video.Subtitles, op.req.TrackType)
	var fontNames []string
	if hasSubtitle {
		fontNames = FontNames(subtitle)
	}
	total := 1 + len(video.Segments) + 1 + len(audio.Segments) + len(fontNames) + 3
	if hasSubtitle {
		total++
	}
	op.progress.Start(total, string(domain.PhaseAssetResolving))

	area, err := NewStagingArea(op.o.stagingDir, op.id)
	if err != nil {
		return DownloadResult{}, err
	}
	defer op.teardown(area)

	videoDir, err := area.Dir(stagingVideoDir)
	if err != nil {
		return DownloadResult{}, err
	}
	audioDir, err := area.Dir(stagingAudioDir)
	if err != nil {
		return DownloadResult{}, err
	}

	op.enter(domain.PhaseFetchingVideo)
	videoFiles, err := op.o.segments.FetchRendition(ctx, video, videoURL, videoDir, op.step)
	if err != nil {
		return DownloadResult{}, err
	}

	op.enter(domain.PhaseFetchingAudio)
	audioFiles, err := op.o.segments.FetchRendition(ctx, audio, audioURL, audioDir, op.step)
	if err != nil {
		return DownloadResult{}, err
	}

	op.enter(domain.PhaseStaging)
	var attachments []ports.MuxAttachment
	if hasSubtitle {
		if err := op.stageSubtitle(ctx, area, subtitle); err != nil {
			return DownloadResult{}, err
		}
		attachments = op.stageFonts(ctx, area, fontNames)
	}

	op.enter(domain.PhaseMuxing)
	if err := op.remux(ctx, area, videoDir, videoFiles, ports.CopyVideo, stagedVideo); err != nil {
		return DownloadResult{}, err
	}
	if err := op.remux(ctx, area, audioDir, audioFiles, ports.CopyAudio, stagedAudio); err != nil {
		return DownloadResult{}, err
	}

	inputs := []string{stagedVideo, stagedAudio}
	if hasSubtitle {
		inputs = append(inputs, stagedSubtitles)
	}
	if err := op.mux(ctx, ports.MuxRequest{
		WorkDir:     area.Root(),
		Inputs:      inputs,
		Copy:        ports.CopyAll,
		Attachments: attachments,
		Output:      stagedOutput,
	}); err != nil {
		return DownloadResult{}, err
	}
	op.step(1)
	if err := area.Remove(stagedVideo, stagedAudio, stagedSubtitles); err != nil {
		return DownloadResult{}, err
	}
	if err := area.RemoveDir(stagingFontsDir); err != nil {
		return DownloadResult{}, err
	}

	saved, err := op.deliver(ctx, area, stagedOutput, ArtifactName(op.req.Video.Title, ".mkv"), mimeMatroska)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{
		File:      saved,
		TrackType: op.req.TrackType,
		Height:    video.Height(),
		Language:  audio.Language,
	}, nil
}

func (op *operation) runAudioOnly(ctx context.Context) (DownloadResult, error) {
	_, audio, _, audioURL, err := op.resolveStreams(ctx, false)
	if err != nil {
		return DownloadResult{}, err
	}
	op.progress.Start(1+len(audio.Segments)+1, string(domain.PhaseRenditionSelecting))

	area, err := NewStagingArea(op.o.stagingDir, op.id)
	if err != nil {
		return DownloadResult{}, err
	}
	defer op.teardown(area)

	audioDir, err := area.Dir(stagingAudioDir)
	if err != nil {
		return DownloadResult{}, err
	}

	op.enter(domain.PhaseFetchingAudio)
	files, err := op.o.segments.FetchRendition(ctx, audio, audioURL, audioDir, op.step)
	if err != nil {
		return DownloadResult{}, err
	}

	op.enter(domain.PhaseMuxing)
	if err := op.remux(ctx, area, audioDir, files, ports.CopyAudio, stagedAudio); err != nil {
		return DownloadResult{}, err
	}

	saved, err := op.deliver(ctx, area, stagedAudio, ArtifactName(op.req.Video.Title, ".m4a"), mimeAudioMP4)
	if err != nil {
		return DownloadResult{}, err
	}
	return DownloadResult{File: saved, TrackType: op.req.TrackType, Language: audio.Language}, nil
}

// runSubtitleFile remet le fichier .ass tel quel: ni staging ni mux.
func (op *operation) runSubtitleFile(ctx context.Context) (DownloadResult, error) {
	op.enter(domain.PhaseAssetResolving)
	asset, ok := FindSubtitle(op.req.Video.Subtitles, op.req.Target.Kind)
	if !ok {
		return DownloadResult{}, fmt.Errorf("%w: no %s file", domain.ErrAssetNotFound, op.req.Target.Kind)
	}
	op.progress.Start(1, string(domain.PhaseAssetResolving))

	u, err := resolveRef(op.req.Video.Host, asset.Path)
	if err != nil {
		return DownloadResult{}, err
	}
	op.enter(domain.PhaseStaging)
	body, err := op.o.fetch.Get(ctx, u)
	if err != nil {
		return DownloadResult{}, err
	}

	op.enter(domain.PhaseFinalizing)
	saved, err := op.sink.Save(ctx, bytes.NewReader(body), assetFileName(asset.Path), mimeSubStationV4)
	if err != nil {
		return DownloadResult{}, err
	}
	op.step(1)
	return DownloadResult{File: saved}, nil
}

func (op *operation) stageSubtitle(ctx context.Context, area *StagingArea, asset domain.SubtitleAsset) error {
	u, err := resolveRef(op.req.Video.Host, asset.Path)
	if err != nil {
		return err
	}
	body, err := op.o.fetch.Get(ctx, u)
	if err != nil {
		return fmt.Errorf("subtitles: %w", err)
	}
	if err := area.WriteFile(stagedSubtitles, body); err != nil {
		return err
	}
	op.step(1)
	return nil
}

// stageFonts est best-effort: chaque police manquante est un avertissement
// et retire un pas du total.
func (op *operation) stageFonts(ctx context.Context, area *StagingArea, names []string) []ports.MuxAttachment {
	declared := len(names)
	if declared == 0 {
		return nil
	}
	urls, err := ResolveFontURLs(ctx, op.o.fonts, names)
	if err != nil {
		op.warn(err)
		op.progress.Shrink(declared)
		return nil
	}

	dir, err := area.Dir(stagingFontsDir)
	if err != nil {
		op.warn(fmt.Errorf("%w: %v", domain.ErrFontResolution, err))
		op.progress.Shrink(declared)
		return nil
	}

	var out []ports.MuxAttachment
	seen := map[string]int{}
	for _, u := range urls {
		name := assetFileName(u)
		if n := seen[name]; n > 0 {
			ext := path.Ext(name)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
		}
		seen[assetFileName(u)]++

		body, err := op.o.fetch.Get(ctx, u)
		if err == nil {
			_, err = dir.writeBytes(name, body)
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			op.warn(fmt.Errorf("%w: font %s: %v", domain.ErrFontResolution, name, err))
			continue
		}
		out = append(out, ports.MuxAttachment{Path: dir.Rel(name), MimeType: FontMimeType(name)})
		if len(out) <= declared {
			op.step(1)
		}
	}
	if missing := declared - len(out); missing > 0 {
		op.progress.Shrink(missing)
	}
	return out
}

// remux écrit le manifeste local de dir, le convertit en output puis supprime dir.
func (op *operation) remux(ctx context.Context, area *StagingArea, dir StagingDir, files []StagedFile, copyMode ports.StreamCopy, output string) error {
	playlist, err := WriteLocalPlaylist(dir, files)
	if err != nil {
		return err
	}
	if err := op.mux(ctx, ports.MuxRequest{
		WorkDir: area.Root(),
		Inputs:  []string{playlist},
		Copy:    copyMode,
		Output:  output,
	}); err != nil {
		return err
	}
	op.step(1)
	return area.RemoveDir(dir.Name())
}

func (op *operation) mux(ctx context.Context, req ports.MuxRequest) error {
	if op.o.muxer == nil {
		return fmt.Errorf("%w: no muxer configured", domain.ErrMux)
	}
	if err := op.o.muxer.Mux(ctx, req); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, domain.ErrMux) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrMux, req.Output, err)
	}
	return nil
}

func (op *operation) deliver(ctx context.Context, area *StagingArea, rel, filename, mimeType string) (ports.SavedFile, error) {
	op.enter(domain.PhaseFinalizing)
	f, err := area.Open(rel)
	if err != nil {
		return ports.SavedFile{}, err
	}
	defer f.Close()
	return op.sink.Save(ctx, f, filename, mimeType)
}

func (op *operation) teardown(area *StagingArea) {
	if err := area.Teardown(); err != nil {
		op.logger.Warn().Err(err).Str("path", area.Root()).Msg("staging teardown failed")
	}
}

// ArtifactName construit "<titre><ext>" sans double extension ni séparateur de chemin.
func ArtifactName(title, ext string) string {
	t := strings.TrimSpace(title)
	t = strings.NewReplacer("/", " ", "\\", " ", "\x00", "").Replace(t)
	t = strings.Join(strings.Fields(t), " ")
	if strings.HasSuffix(strings.ToLower(t), strings.ToLower(ext)) {
		t = strings.TrimSpace(t[:len(t)-len(ext)])
	}
	t = strings.Trim(t, ".")
	if t == "" {
		t = "video"
	}
	return t + ext
}

// assetFileName renvoie le dernier élément du chemin (décodé) d'une URL ou d'un chemin relatif.
func assetFileName(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
