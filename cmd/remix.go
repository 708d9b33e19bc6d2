package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"remixai/config"
	"remixai/core/audio"
	"remixai/core/remix"
	"remixai/logger"
	"remixai/store"

	"github.com/spf13/cobra"
)

var (
	remixInput    string
	remixStyle    string
	remixDuration int
	remixOutDir   string
)

var remixCmd = &cobra.Command{
	Use:   "remix",
	Short: "Run the full remix pipeline on one file",
	Long: `Ingest an audio file, separate its stems, generate an accompaniment for
the given style and mix the vocals with it, without starting a server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if remixOutDir != "" {
			cfg.OutputDir = remixOutDir
		}

		logger.Init(logger.Config{Level: cfg.LogLevel, OutputPath: cfg.LogPath})

		st := store.NewProjectStore(cfg.SnapshotPath, cfg.ProjectName, cfg.OutputDir)
		if err := st.Load(); err != nil {
			return err
		}

		loader := audio.NewLoader(cfg.FFmpegPath, cfg.SampleRate)
		pipeline := remix.New(cfg, st, loader,
			func() (remix.Separator, error) {
				return remix.NewDemucsSeparator(cfg.PythonPath, cfg.DemucsModel, loader), nil
			},
			func() (remix.Generator, error) {
				return remix.NewMusicGenClient(cfg.MusicGenURL,
					time.Duration(cfg.MusicGenTimeout)*time.Second, loader), nil
			},
		)

		ctx := context.Background()

		f, err := os.Open(remixInput)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		song, err := pipeline.Ingest(remixInput, f)
		f.Close()
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %s (%s, %d bytes)\n", song.Key(), song.Format, song.Size)

		stems, err := pipeline.Separate(ctx, song.Key())
		if err != nil {
			return err
		}
		fmt.Printf("Separated %d stems\n", len(stems))

		vocals, ok := stems["vocals"]
		if !ok {
			return fmt.Errorf("separator produced no vocals stem")
		}

		accomp, err := pipeline.Generate(ctx, remixStyle, remixDuration)
		if err != nil {
			return err
		}
		if err := pipeline.AttachGenerated(song.Key(), accomp); err != nil {
			return err
		}
		fmt.Printf("Generated accompaniment: %s\n", accomp.FilePath)

		mixed, err := pipeline.Mix(ctx, song.Key(), []string{vocals.FilePath, accomp.FilePath}, "")
		if err != nil {
			return err
		}
		fmt.Printf("Remix ready: %s\n", mixed.FilePath)
		return nil
	},
}

func init() {
	remixCmd.Flags().StringVar(&remixInput, "input", "", "input audio file (mp3, wav, flac, ogg)")
	remixCmd.Flags().StringVar(&remixStyle, "style", "", "style prompt for the accompaniment (e.g. 'electronic', 'lo-fi')")
	remixCmd.Flags().IntVar(&remixDuration, "duration", 0, "accompaniment duration in seconds (default from config)")
	remixCmd.Flags().StringVar(&remixOutDir, "output", "", "output directory (default from config)")
	remixCmd.MarkFlagRequired("input")
	remixCmd.MarkFlagRequired("style")
	rootCmd.AddCommand(remixCmd)
}
