package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/justchokingaround/reel/internal/downloader"
	"github.com/justchokingaround/reel/internal/settings"
	"github.com/justchokingaround/reel/internal/ytdlp"
)

const titleWidth = 48

// downloadCmd downloads one or more URLs through the queue
var downloadCmd = &cobra.Command{
	Use:   "download [url...]",
	Short: "Download videos or playlists",
	Example: `  reel download https://www.youtube.com/watch?v=dQw4w9WgXcQ
  reel download --clipboard --height 720
  reel download --audio --playlist https://www.youtube.com/playlist?list=...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fromClipboard, _ := cmd.Flags().GetBool("clipboard")
		playlist, _ := cmd.Flags().GetBool("playlist")
		parallel, _ := cmd.Flags().GetInt("parallel")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		urls := args
		if fromClipboard {
			u, err := clip.ReadURL(ctx)
			if err != nil {
				return err
			}
			urls = append(urls, u)
		}
		if len(urls) == 0 {
			return errors.New("no URL given (pass one or use --clipboard)")
		}

		opts, isAudio, height := downloadOptions(cmd)

		var reqs []downloader.Request
		for _, u := range urls {
			if !playlist {
				reqs = append(reqs, downloader.Request{URL: u, Options: opts, IsAudio: isAudio, PresetHeight: height})
				continue
			}
			entries, err := engine.FetchPlaylist(ctx, u, opts)
			if err != nil {
				return fmt.Errorf("failed to list playlist: %w", err)
			}
			for i := range entries {
				link := entries[i].Link()
				if link == "" {
					continue
				}
				reqs = append(reqs, downloader.Request{
					URL:          link,
					Title:        entries[i].Title,
					Options:      opts,
					IsAudio:      isAudio,
					PresetHeight: height,
				})
			}
		}

		provider := prefs
		if parallel > 0 {
			provider = append(settings.Chain{settings.Static{downloader.KeyMaxParallel: parallel}}, prefs...)
		}

		queue := downloader.NewQueue(engine, downloader.Config{
			Settings:         provider,
			History:          hist,
			States:           hist,
			Logger:           logger,
			ProgressInterval: cfg.Downloads.ProgressInterval,
			DownloadDir:      cfg.Downloads.Path,
		})
		defer queue.Close()

		printer := newProgressPrinter()
		queue.OnUpdate(printer.update)

		for _, req := range reqs {
			if _, err := queue.Enqueue(req); err != nil {
				return err
			}
		}

		fmt.Printf("Downloading %d item(s), %d at a time, into %s\n", len(reqs), queue.MaxParallel(), cfg.Downloads.Path)

		go func() {
			<-ctx.Done()
			queue.CancelAll()
		}()

		if err := queue.Wait(context.Background()); err != nil {
			return err
		}

		var failed int
		for _, it := range queue.List() {
			if it.Status == downloader.StatusFailed {
				failed++
			}
		}
		if ctx.Err() != nil {
			return errors.New("interrupted")
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d downloads failed", failed, len(reqs))
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().Bool("clipboard", false, "read the URL from the clipboard")
	downloadCmd.Flags().Bool("playlist", false, "expand playlist URLs and queue every entry")
	downloadCmd.Flags().IntP("parallel", "j", 0, "downloads to run at once (1-10, default from settings)")
	downloadCmd.Flags().StringP("format", "f", "", "yt-dlp format selector")
	downloadCmd.Flags().IntP("height", "H", 0, "highest video height to fetch, e.g. 720")
	downloadCmd.Flags().BoolP("audio", "a", false, "download audio only")
	downloadCmd.Flags().StringP("output", "o", "", "output template (relative to the download directory)")
	downloadCmd.Flags().String("container", "", "target container, e.g. mp4 or mkv")
	downloadCmd.Flags().Bool("recode", false, "allow re-encoding when remuxing into --container is not possible")
	downloadCmd.Flags().StringSlice("subs", nil, "subtitle languages to fetch, e.g. en,de")
	downloadCmd.Flags().Bool("embed-subs", false, "embed subtitles into the video")
	downloadCmd.Flags().Duration("timeout", 0, "per download timeout (default from config)")
}

// downloadOptions merges config defaults, stored settings and flags
func downloadOptions(cmd *cobra.Command) (ytdlp.DownloadOptions, bool, int) {
	opts := cfg.Downloads.ToDownloadOptions()
	opts.NoCheckCertificate = prefs.GetBool("downloads.no_check_certificate", opts.NoCheckCertificate)
	opts.CookiesFromBrowser = prefs.GetString("downloads.cookies_from_browser", opts.CookiesFromBrowser)
	opts.Proxy = prefs.GetString("downloads.proxy", opts.Proxy)

	height := prefs.GetInt("downloads.max_height", cfg.Downloads.MaxHeight)
	if cmd.Flags().Changed("height") {
		height, _ = cmd.Flags().GetInt("height")
	}

	isAudio, _ := cmd.Flags().GetBool("audio")
	format, _ := cmd.Flags().GetString("format")
	switch {
	case format != "":
		opts.Format = format
	case isAudio:
		opts.Format = "bestaudio/best"
		opts.ExtraArgs = append(opts.ExtraArgs, "--extract-audio")
	case height > 0 && opts.Format == "":
		opts.Format = fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height)
	}

	if v, _ := cmd.Flags().GetString("output"); v != "" {
		opts.OutputTemplate = v
	}
	if v, _ := cmd.Flags().GetString("container"); v != "" {
		opts.TargetContainer = v
	}
	if cmd.Flags().Changed("recode") {
		opts.AllowRecode, _ = cmd.Flags().GetBool("recode")
	}
	if langs, _ := cmd.Flags().GetStringSlice("subs"); len(langs) > 0 {
		opts.Subtitles.Languages = langs
		opts.Subtitles.Write = true
	}
	if embed, _ := cmd.Flags().GetBool("embed-subs"); embed {
		opts.Subtitles.Embed = true
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}

	return opts, isAudio, height
}

// progressPrinter prints one line per status change and per 10% step
type progressPrinter struct {
	mu   sync.Mutex
	last map[string]progressMark
}

type progressMark struct {
	status downloader.DownloadStatus
	step   int
}

func newProgressPrinter() *progressPrinter {
	return &progressPrinter{last: make(map[string]progressMark)}
}

func (p *progressPrinter) update(it downloader.QueueItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark := progressMark{status: it.Status, step: int(it.Progress) / 10}
	if prev, ok := p.last[it.ID]; ok && prev == mark {
		return
	}
	p.last[it.ID] = mark

	name := it.Title
	if name == "" {
		name = it.URL
	}
	name = runewidth.FillRight(runewidth.Truncate(name, titleWidth, "…"), titleWidth)

	switch it.Status {
	case downloader.StatusPending:
		fmt.Printf("%s  queued\n", name)
	case downloader.StatusRunning:
		line := fmt.Sprintf("%s  %5.1f%%", name, it.Progress)
		if it.Speed > 0 {
			line += "  " + humanize.IBytes(uint64(it.Speed)) + "/s"
		}
		if it.ETA > 0 {
			line += "  ETA " + it.ETA.Round(time.Second).String()
		}
		fmt.Println(line)
	case downloader.StatusCompleted:
		fmt.Printf("%s  done  %s\n", name, it.OutputPath)
	case downloader.StatusFailed:
		fmt.Printf("%s  failed: %s\n", name, firstLine(it.Error))
	case downloader.StatusCancelled:
		fmt.Printf("%s  cancelled\n", name)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
