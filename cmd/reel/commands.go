package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/justchokingaround/reel/internal/downloader"
	"github.com/justchokingaround/reel/internal/downloader/tools"
	"github.com/justchokingaround/reel/internal/history"
)

// infoCmd prints metadata for a URL
var infoCmd = &cobra.Command{
	Use:   "info <url>",
	Short: "Show metadata and available resolutions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		playlist, _ := cmd.Flags().GetBool("playlist")
		opts := cfg.Downloads.ToDownloadOptions()

		if playlist {
			entries, err := engine.FetchPlaylist(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(entries)
			}
			for i, e := range entries {
				title := runewidth.FillRight(runewidth.Truncate(e.Title, titleWidth, "…"), titleWidth)
				fmt.Printf("%3d  %s  %8s  %s\n", i+1, title, formatSeconds(e.Duration), e.Link())
			}
			return nil
		}

		meta, err := engine.FetchMetadata(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		_ = meta.Resolve(0, nil)
		if asJSON {
			return printJSON(meta)
		}

		fmt.Printf("Title:    %s\n", meta.Title)
		fmt.Printf("ID:       %s\n", meta.ID)
		if meta.Uploader != "" {
			fmt.Printf("Uploader: %s\n", meta.Uploader)
		}
		fmt.Printf("Duration: %s\n", formatSeconds(meta.Duration))
		if meta.ViewCount > 0 {
			fmt.Printf("Views:    %s\n", humanize.Comma(meta.ViewCount))
		}
		if t, err := time.Parse("20060102", meta.UploadDate); err == nil {
			fmt.Printf("Uploaded: %s (%s)\n", t.Format("2006-01-02"), humanize.Time(t))
		}
		if len(meta.Subtitles) > 0 {
			langs := make([]string, 0, len(meta.Subtitles))
			for l := range meta.Subtitles {
				langs = append(langs, l)
			}
			sort.Strings(langs)
			fmt.Printf("Subtitles: %s\n", strings.Join(langs, ", "))
		}

		heights := make([]int, 0, len(meta.Resolutions))
		for h := range meta.Resolutions {
			heights = append(heights, h)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(heights)))

		fmt.Println("\nResolutions:")
		for _, h := range heights {
			r := meta.Resolutions[h]
			kind := "video only"
			if r.Progressive {
				kind = "progressive"
			}
			fmt.Printf("  %5dp  %s\n", h, kind)
		}
		return nil
	},
}

// urlCmd resolves a direct media URL
var urlCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Print a single direct media URL",
	Long: `Print a direct, single-file media URL for a video.

Without --selector the best progressive (audio and video in one file)
format up to --height is chosen. With --selector yt-dlp resolves the
selector, which must match exactly one URL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		height, _ := cmd.Flags().GetInt("height")
		exts, _ := cmd.Flags().GetStringSlice("ext")
		selector, _ := cmd.Flags().GetString("selector")
		copyURL, _ := cmd.Flags().GetBool("copy")
		opts := cfg.Downloads.ToDownloadOptions()

		var link string
		if selector != "" {
			u, err := engine.ResolveExactDirectURL(cmd.Context(), args[0], selector, opts)
			if err != nil {
				return err
			}
			link = u
		} else {
			meta, err := engine.ResolveDirectURL(cmd.Context(), args[0], height, exts, opts)
			if err != nil {
				return err
			}
			link = meta.DirectURL
			logger.Info("resolved direct url", "format", meta.DirectURLFormat)
		}

		fmt.Println(link)
		if copyURL {
			if err := clip.Write(cmd.Context(), link); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "copied to clipboard")
		}
		return nil
	},
}

// updateCmd checks for and installs yt-dlp updates
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update yt-dlp",
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetBool("check")

		if check {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Network.Timeout)
			defer cancel()
			st, err := engine.HasUpdate(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Installed: %s\n", st.Current)
			fmt.Printf("Latest:    %s\n", st.Latest)
			if st.Available {
				fmt.Println("An update is available, run `reel update` to install it.")
			} else {
				fmt.Println("yt-dlp is up to date.")
			}
			return nil
		}

		outcome, err := engine.SelfUpdate(cmd.Context())
		if err != nil {
			return fmt.Errorf("yt-dlp update failed: %w", err)
		}
		if outcome.Skipped {
			fmt.Println("yt-dlp was updated recently, skipping.")
			return nil
		}
		if v, err := engine.Version(cmd.Context()); err == nil {
			fmt.Printf("yt-dlp %s\n", v)
		}
		return nil
	},
}

// historyCmd lists and manages finished downloads
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show finished downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		sortBy, _ := cmd.Flags().GetString("sort")
		clearAll, _ := cmd.Flags().GetBool("clear")
		stats, _ := cmd.Flags().GetBool("stats")
		failed, _ := cmd.Flags().GetBool("failed")
		show, _ := cmd.Flags().GetUint("show")
		remove, _ := cmd.Flags().GetUint("delete")

		if clearAll {
			n, err := hist.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d history entries\n", n)
			return nil
		}

		if stats {
			s, err := hist.GetStats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Downloads: %d (%d video, %d audio)\n", s.TotalItems, s.VideoCount, s.AudioCount)
			fmt.Printf("Total duration: %s\n", s.TotalDuration.Round(time.Second))
			return nil
		}

		if failed {
			states, err := hist.States(ctx, string(downloader.StatusFailed))
			if err != nil {
				return err
			}
			for _, st := range states {
				name := st.Title
				if name == "" {
					name = st.URL
				}
				name = runewidth.FillRight(runewidth.Truncate(name, titleWidth, "…"), titleWidth)
				fmt.Printf("%s  %-14s  %s\n", name, humanize.Time(st.CreatedAt), firstLine(st.Error))
			}
			return nil
		}

		if remove > 0 {
			if err := hist.Delete(ctx, remove); err != nil {
				return err
			}
			fmt.Printf("Removed history entry %d\n", remove)
			return nil
		}

		if show > 0 {
			item, err := hist.Get(ctx, show)
			if err != nil {
				return err
			}
			meta, err := hist.Metadata(ctx, show)
			if err != nil {
				return err
			}
			if meta == nil {
				return printJSON(item)
			}
			return printJSON(meta)
		}

		filter := history.FilterOptions{
			SearchQuery: search,
			Limit:       limit,
			SortBy:      history.SortOrder(sortBy),
		}
		if cmd.Flags().Changed("audio") {
			audio, _ := cmd.Flags().GetBool("audio")
			filter.AudioOnly = &audio
		}

		items, err := hist.List(ctx, filter)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No downloads yet.")
			return nil
		}
		for _, it := range items {
			title := runewidth.FillRight(runewidth.Truncate(it.Title, titleWidth, "…"), titleWidth)
			fmt.Printf("%4d  %s  %8s  %-14s  %s\n",
				it.ID, title, formatSeconds(it.Duration.Seconds()), humanize.Time(it.DownloadedAt), it.FilePath)
		}
		return nil
	},
}

// doctorCmd reports which external tools were found
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that yt-dlp and ffmpeg are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := []struct {
			tool tools.ToolType
			path string
		}{
			{tools.ToolYTDLP, cfg.Tool.YtDlpPath},
			{tools.ToolFFmpeg, cfg.Tool.FFmpegPath},
		}

		var missing bool
		for _, c := range checks {
			info := tools.Detect(cmd.Context(), c.tool, c.path)
			if !info.Available {
				missing = true
				fmt.Printf("%-8s not found\n", c.tool)
				continue
			}
			version := info.Version
			if version == "" {
				version = "unknown version"
			}
			fmt.Printf("%-8s %s (%s)\n", c.tool, version, info.Binary)
		}
		if missing {
			return fmt.Errorf("required tools are missing")
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().Bool("json", false, "print raw JSON")
	infoCmd.Flags().Bool("playlist", false, "list playlist entries instead of a single video")

	urlCmd.Flags().IntP("height", "H", 0, "highest height to consider (0 = any)")
	urlCmd.Flags().StringSlice("ext", []string{"mp4", "webm"}, "preferred extensions, best first")
	urlCmd.Flags().StringP("selector", "f", "", "exact yt-dlp format selector")
	urlCmd.Flags().BoolP("copy", "c", false, "copy the URL to the clipboard")

	updateCmd.Flags().Bool("check", false, "only check whether an update is available")

	historyCmd.Flags().StringP("search", "s", "", "filter by title or URL")
	historyCmd.Flags().IntP("limit", "n", 20, "maximum entries to show (0 = all)")
	historyCmd.Flags().String("sort", string(history.SortRecentFirst), "recent_first, oldest_first, title_asc or title_desc")
	historyCmd.Flags().Bool("audio", false, "only audio (or with --audio=false only video) downloads")
	historyCmd.Flags().Bool("clear", false, "delete all history")
	historyCmd.Flags().Bool("stats", false, "show totals")
	historyCmd.Flags().Bool("failed", false, "list downloads that failed")
	historyCmd.Flags().Uint("show", 0, "print the stored metadata of the entry with this id")
	historyCmd.Flags().Uint("delete", 0, "delete the entry with this id")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatSeconds(secs float64) string {
	if secs <= 0 {
		return "-"
	}
	d := time.Duration(secs * float64(time.Second)).Round(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
