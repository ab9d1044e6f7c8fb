package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/i474232898/saferoute/internal/artifact"
	"github.com/i474232898/saferoute/internal/dataset"
	"github.com/i474232898/saferoute/internal/preprocess"
	"github.com/i474232898/saferoute/internal/schema"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "repair-preprocessor",
	Short: "Rebuilds the feature preprocessor artifact from the historical dataset",
	Long: `repair-preprocessor refits the scaler and one-hot encoder on the historical
traffic CSV and writes a preprocessor artifact the saferoute server can load.
Run it when the existing artifact is missing or fails to load.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cmd.ErrOrStderr(), options{
			Dataset:  viper.GetString("dataset"),
			Output:   viper.GetString("output"),
			Region:   viper.GetString("region"),
			Progress: viper.GetBool("progress"),
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.saferoute.yaml)")

	rootCmd.Flags().String("dataset", "Synthetic_Transportation_Dataset_Expanded_v2.csv", "Historical dataset CSV (path or s3://bucket/key)")
	rootCmd.Flags().String("output", "preprocessor.json", "Where to write the preprocessor (path or s3://bucket/key)")
	rootCmd.Flags().String("region", "", "AWS region for s3:// locations")
	rootCmd.Flags().Bool("progress", true, "Show a progress spinner while reading the dataset")

	viper.BindPFlags(rootCmd.Flags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".saferoute")
	}

	viper.SetEnvPrefix("saferoute")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

type options struct {
	Dataset  string
	Output   string
	Region   string
	Progress bool
}

func run(ctx context.Context, out io.Writer, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store := artifact.Router{Local: artifact.FileStore{}}
	if artifact.IsRemote(opts.Dataset) || artifact.IsRemote(opts.Output) {
		remote, err := artifact.NewS3Store(ctx, opts.Region, artifact.DefaultBackoff)
		if err != nil {
			return err
		}
		store.Remote = remote
	}

	fmt.Fprintln(out, "Refitting preprocessor from", opts.Dataset)
	t, err := repair(ctx, store, opts, out)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Wrote %s (%d features over %s)\n", opts.Output, t.Width(), t.Schema())
	return nil
}

// repair reads the dataset, fits a transformer on the traffic schema and
// writes it to opts.Output.
func repair(ctx context.Context, store artifact.Store, opts options, progress io.Writer) (*preprocess.Transformer, error) {
	in, err := store.Open(ctx, opts.Dataset)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not find the dataset %q; place it next to this tool or pass --dataset", opts.Dataset)
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer in.Close()

	var readOpts dataset.Options
	if opts.Progress {
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription("reading rows"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowCount(),
		)
		defer func() {
			_ = bar.Finish()
			fmt.Fprintln(progress)
		}()
		readOpts.OnRow = func() { _ = bar.Add(1) }
	}

	rows, err := dataset.Read(in, readOpts)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	t, err := preprocess.Fit(schema.Traffic, rows)
	if err != nil {
		return nil, fmt.Errorf("fit preprocessor: %w", err)
	}

	w, err := store.Create(ctx, opts.Output)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", opts.Output, err)
	}
	if err := t.Save(w); err != nil {
		w.Close()
		return nil, fmt.Errorf("write %s: %w", opts.Output, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("write %s: %w", opts.Output, err)
	}
	return t, nil
}
