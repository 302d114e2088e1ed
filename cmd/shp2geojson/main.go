package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/woozymasta/shp2geojson/internal/config"
	"github.com/woozymasta/shp2geojson/internal/geo"
	"github.com/woozymasta/shp2geojson/internal/logger"
	"github.com/woozymasta/shp2geojson/internal/processor"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Args struct {
		Input string `positional-arg-name:"input" description:"Path to the input shapefile"`
	} `positional-args:"yes"`

	ConfigFile string `short:"c" long:"config"     env:"CONFIG_FILE"  description:"Path to optional configuration file"`
	Output     string `short:"o" long:"out"        description:"Output file path. Defaults to the input path with a .geojson extension"`
	AssumeCRS  string `short:"a" long:"assume-crs" env:"ASSUME_CRS"   description:"CRS assumed when the shapefile has no .prj (e.g. EPSG:3826)"`
	Encoding   string `short:"e" long:"encoding"   env:"DBF_ENCODING" description:"DBF text encoding used when no .cpg file exists"`
	BBox       bool   `long:"bbox"   description:"Write bbox members"`
	Indent     bool   `long:"indent" description:"Pretty-print output"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] <input>"
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return exitOK
		}
		return exitUsage
	}

	if opts.Args.Input == "" {
		parser.WriteHelp(stdout)
		return exitUsage
	}

	opts.Logger.SetupWriter(stdout)

	convOpts, err := conversionOptions(&opts)
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return exitFailure
	}

	res, err := processor.Convert(opts.Args.Input, convOpts)
	if err != nil {
		var convErr *processor.ConversionError
		if errors.As(err, &convErr) {
			log.Error().
				Err(convErr.Err).
				Str("stage", convErr.Stage).
				Str("path", convErr.Path).
				Msg("Conversion failed")
		} else {
			log.Error().Err(err).Msg("Conversion failed")
		}
		return exitFailure
	}

	log.Info().
		Str("output", res.Output).
		Int("features", res.Features).
		Str("source_crs", res.SourceCRS.String()).
		Bool("assumed", res.Assumed).
		Bool("reprojected", res.Reprojected).
		Msg("Conversion successful")

	return exitOK
}

// conversionOptions merges the config file with command line overrides.
func conversionOptions(opts *Options) (processor.Options, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return processor.Options{}, fmt.Errorf("load config: %w", err)
	}

	reg, err := cfg.Registry()
	if err != nil {
		return processor.Options{}, err
	}

	assumed := cfg.AssumedCRS
	if opts.AssumeCRS != "" {
		assumed = opts.AssumeCRS
	}
	assumedCRS, err := reg.Resolve(assumed)
	if err != nil {
		return processor.Options{}, fmt.Errorf("assumed crs: %w", err)
	}

	encoding := cfg.Encoding
	if opts.Encoding != "" {
		encoding = opts.Encoding
	}

	return processor.Options{
		Registry:   reg,
		AssumedCRS: assumedCRS,
		Output:     opts.Output,
		Encoding:   encoding,
		Marshal: geo.MarshalOptions{
			BBox:   opts.BBox || cfg.BBox,
			Indent: opts.Indent || cfg.Indent,
		},
	}, nil
}
