// Command mobigen converts an MDOCX bundle into a MOBI book.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/logicossoftware/go-mobi"
	"github.com/logicossoftware/go-mobi/mdocx"
)

func main() {
	var inPath string
	var outPath string
	var compression string
	var periodical string
	var thumbnail bool
	var endRecords bool
	var tocDepth int
	var verbose bool

	flag.StringVar(&inPath, "in", "", "input .mdocx file")
	flag.StringVar(&outPath, "out", "", "output .mobi file (default: input name with .mobi)")
	flag.StringVar(&compression, "compression", "palmdoc", "text compression: none or palmdoc")
	flag.StringVar(&periodical, "periodical", "auto", "index layout: auto, book or periodical")
	flag.BoolVar(&thumbnail, "thumbnail", true, "add a thumbnail of the cover image")
	flag.BoolVar(&endRecords, "end-records", false, "append FLIS and FCIS records")
	flag.IntVar(&tocDepth, "toc-depth", 2, "deepest heading level that enters the TOC (1-3)")
	flag.BoolVar(&verbose, "v", false, "log build details")
	flag.Parse()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if inPath == "" {
		fatal(log, "-in is required", nil)
	}
	if outPath == "" {
		outPath = strings.TrimSuffix(inPath, filepath.Ext(inPath)) + ".mobi"
	}

	comp, err := mobi.ParseCompression(compression)
	if err != nil {
		fatal(log, "bad -compression", err)
	}
	var mode mobi.IndexMode
	switch periodical {
	case "auto":
		mode = mobi.IndexAuto
	case "book":
		mode = mobi.IndexBook
	case "periodical":
		mode = mobi.IndexPeriodical
	default:
		fatal(log, "bad -periodical", fmt.Errorf("unknown layout %q", periodical))
	}

	in, err := os.Open(inPath)
	if err != nil {
		fatal(log, "open input", err)
	}
	bundle, err := mdocx.Read(in)
	in.Close()
	if err != nil {
		fatal(log, "read bundle", err)
	}

	doc, nav, err := mdocx.Convert(bundle, mdocx.WithTOCDepth(tocDepth), mdocx.WithConvertLogger(log))
	if err != nil {
		fatal(log, "convert bundle", err)
	}

	warnings := 0
	book, err := mobi.Build(doc, nav,
		mobi.WithCompression(comp),
		mobi.WithIndexMode(mode),
		mobi.WithThumbnail(thumbnail),
		mobi.WithEndRecords(endRecords),
		mobi.WithLogger(log),
		mobi.WithWarningHandler(func(w mobi.Warning) {
			warnings++
			fmt.Fprintln(os.Stderr, "warning:", w)
		}),
	)
	if err != nil {
		fatal(log, "build book", err)
	}

	if err := os.WriteFile(outPath, book, 0o644); err != nil {
		fatal(log, "write output", err)
	}
	fmt.Printf("Wrote %s (%d bytes, %d warnings)\n", outPath, len(book), warnings)
}

func fatal(log *slog.Logger, msg string, err error) {
	if err != nil {
		log.Error(msg, "error", err)
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}
