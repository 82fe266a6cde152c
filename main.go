package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hesusruiz/thtml/starval"
	"github.com/hesusruiz/thtml/thtml"
)

var debug bool

// loadData reads the render context from a YAML file. Without a file the
// context starts empty and expressions only see front matter data.
func loadData(fileName string) (map[string]any, error) {
	if fileName == "" {
		return map[string]any{}, nil
	}
	src, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := yaml.Unmarshal(src, &data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", fileName, err)
	}
	return data, nil
}

// processWatch checks periodically if the input file has been modified,
// and if so renders it again and writes the result to the output file.
// A failed render is reported and watching continues, so a half-saved
// template does not kill the session.
func processWatch(inputFileName, outputFileName string, render func() (string, error)) error {

	var old_timestamp time.Time

	for {
		info, err := os.Stat(inputFileName)
		if err != nil {
			return err
		}
		current_timestamp := info.ModTime()

		if old_timestamp.Before(current_timestamp) {
			old_timestamp = current_timestamp
			fmt.Println("************Processing*************")
			html, err := render()
			if err != nil {
				fmt.Println(err)
			} else if err := atomic.WriteFile(outputFileName, strings.NewReader(html)); err != nil {
				return err
			}
		}

		// Check again in one second
		time.Sleep(1 * time.Second)
	}
}

// process is the main entry point of the program
func process(c *cli.Context) error {

	// Default input file name
	var inputFileName = "index.html"

	// Output file name command line parameter
	outputFileName := c.String("output")

	// Dry run
	dryrun := c.Bool("dryrun")

	debug = c.Bool("debug")

	var z *zap.Logger
	var err error

	// Setup the logging system
	if debug {
		z, err = zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
	} else {
		z, err = zap.NewProduction()
		if err != nil {
			panic(err)
		}
	}

	sugar := z.Sugar()
	defer sugar.Sync()

	// Get the input file name
	if c.Args().Present() {
		inputFileName = c.Args().First()
	} else {
		fmt.Printf("no input file provided, using %q\n", inputFileName)
	}

	// Generate the output file name
	if len(outputFileName) == 0 {
		ext := path.Ext(inputFileName)
		outputFileName = strings.TrimSuffix(inputFileName, ext) + ".html"
		if outputFileName == inputFileName {
			outputFileName = strings.TrimSuffix(inputFileName, ext) + ".out.html"
		}
	}

	// Print a message
	if !dryrun {
		fmt.Printf("processing %v and generating %v\n", inputFileName, outputFileName)
	} else {
		fmt.Printf("dry run: processing %v without writing output\n", inputFileName)
	}

	data, err := loadData(c.String("data"))
	if err != nil {
		return err
	}

	renderer := thtml.New(starval.New(), nil, z)
	opts := thtml.Options{Cache: !c.Bool("nocache")}

	render := func() (string, error) {
		html, err := renderer.RenderFile(context.Background(), inputFileName, data, opts)
		if err != nil {
			return "", err
		}
		if debug {
			st := thtml.Stats()
			sugar.Debugw("parse cache", "hits", st.Hits, "misses", st.Misses)
		}
		return html, nil
	}

	// This is useful for development.
	// If the user specified to watch, loop forever processing the input file when modified
	if c.Bool("watch") {
		return processWatch(inputFileName, outputFileName, render)
	}

	html, err := render()
	if err != nil {
		return err
	}

	// Do nothing if flag dryrun was specified
	if dryrun {
		return nil
	}

	// Write the HTML atomically so a reader of the output file never
	// observes a half-written document
	return atomic.WriteFile(outputFileName, bytes.NewReader([]byte(html)))
}

func main() {

	app := &cli.App{
		Name:     "thtml",
		Version:  "v0.02",
		Compiled: time.Now(),
		Authors: []*cli.Author{
			{
				Name:  "Jesus Ruiz",
				Email: "hesus.ruiz@gmail.com",
			},
		},
		Usage:     "render a directive HTML template and produce the final HTML",
		UsageText: "thtml [options] [INPUT_FILE] (default input file is index.html)",
		Action:    process,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "write html to `FILE` (default is input file name with extension .html)",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"D"},
				Usage:   "read the render context from the YAML `FILE`",
			},
			&cli.BoolFlag{
				Name:    "dryrun",
				Aliases: []string{"n"},
				Usage:   "do not generate output file, just process input file",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "run in debug mode",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "watch the input file and process it when modified",
			},
			&cli.BoolFlag{
				Name:  "nocache",
				Usage: "parse the template on every render instead of using the cache",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
