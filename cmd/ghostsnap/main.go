package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/menta2k/ghostsnap"
	"github.com/menta2k/ghostsnap/internal/config"
	"github.com/menta2k/ghostsnap/internal/logging"
	"github.com/menta2k/ghostsnap/internal/utils"
	"github.com/menta2k/ghostsnap/pkg/analyzer"
	"github.com/menta2k/ghostsnap/pkg/client"
	"github.com/menta2k/ghostsnap/pkg/detection"
	"github.com/menta2k/ghostsnap/pkg/effects"
	"github.com/menta2k/ghostsnap/pkg/geometry"
	"github.com/menta2k/ghostsnap/pkg/gesture"
	"github.com/menta2k/ghostsnap/pkg/llamacpp"
	"github.com/menta2k/ghostsnap/pkg/ocr"
	"github.com/menta2k/ghostsnap/pkg/ollama"
	"github.com/menta2k/ghostsnap/pkg/processing"
	"github.com/menta2k/ghostsnap/pkg/region"
)

// regionFlag collects repeated -rect, -ellipse and -path values
type regionFlag struct {
	kind    region.Kind
	regions *[]region.Region
}

func (f regionFlag) String() string { return "" }

func (f regionFlag) Set(v string) error {
	var r region.Region
	var err error
	if f.kind == region.Path {
		r, err = parsePath(v)
	} else {
		r, err = parseBox(f.kind, v)
	}
	if err != nil {
		return err
	}
	*f.regions = append(*f.regions, r)
	return nil
}

// parseBox reads "x,y,w,h" in source pixels
func parseBox(kind region.Kind, v string) (region.Region, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return region.Region{}, fmt.Errorf("want x,y,w,h, got %q", v)
	}
	var n [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return region.Region{}, fmt.Errorf("bad number %q in %q", p, v)
		}
		n[i] = f
	}
	return region.FromBox(kind, geometry.Box{X: n[0], Y: n[1], Width: n[2], Height: n[3]}), nil
}

// parsePath reads "x1,y1 x2,y2 ..."; semicolons also separate points
func parsePath(v string) (region.Region, error) {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == ';' })
	points := make([]geometry.Point, 0, len(fields))
	for _, field := range fields {
		xy := strings.Split(field, ",")
		if len(xy) != 2 {
			return region.Region{}, fmt.Errorf("want x,y, got %q", field)
		}
		x, errX := strconv.ParseFloat(xy[0], 64)
		y, errY := strconv.ParseFloat(xy[1], 64)
		if errX != nil || errY != nil {
			return region.Region{}, fmt.Errorf("bad point %q", field)
		}
		points = append(points, geometry.Point{X: x, Y: y})
	}
	return region.NewPath(points), nil
}

func main() {
	var in, out, configPath, writeConfig, overlayPath, regionsOut string
	var format, effectName, backend, serverURL, model, sendFmt string
	var logLevel, logFormat, languages string
	var quality, sendSize, sendQ, blurRadius, cellSize, timeout int
	var lossless, detect, check, jsonMode bool
	var regions []region.Region

	flag.StringVar(&in, "in", "", "input image path or URL (jpg/png/gif/webp/bmp/tiff)")
	flag.StringVar(&out, "out", "", "output image path (default: <input>-redacted.<format>)")
	flag.StringVar(&configPath, "config", "", "config file (.json, .yaml or .yml)")
	flag.StringVar(&writeConfig, "writeconfig", "", "write the effective config to this file and exit")
	flag.StringVar(&format, "format", "", "output format: png|jpg|webp|bmp|tiff")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.StringVar(&overlayPath, "overlay", "", "also write the input with region outlines to this path")
	flag.StringVar(&regionsOut, "regions", "", "write the final regions as JSON to this path")

	flag.StringVar(&effectName, "effect", "", "effect: blur|pixelate")
	flag.IntVar(&blurRadius, "blur", 0, "blur radius in px (2-50)")
	flag.IntVar(&cellSize, "cell", 0, "pixelation cell size in px (4-50)")

	flag.Var(regionFlag{region.Rectangle, &regions}, "rect", "rectangle x,y,w,h in source pixels (repeatable)")
	flag.Var(regionFlag{region.Ellipse, &regions}, "ellipse", "ellipse bounding box x,y,w,h (repeatable)")
	flag.Var(regionFlag{region.Path, &regions}, "path", "freehand path \"x1,y1 x2,y2 ...\" (repeatable)")

	flag.BoolVar(&detect, "detect", false, "auto-detect sensitive areas")
	flag.BoolVar(&check, "check", false, "check the detection backend can see the image and exit")
	flag.StringVar(&backend, "backend", "", "detection backend: ollama|llamacpp|tesseract")
	flag.StringVar(&serverURL, "url", "", "server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "vision model name")
	flag.StringVar(&sendFmt, "sendfmt", "", "format sent to the model: jpg|png")
	flag.IntVar(&sendSize, "sendsize", -1, "max long side sent to the model (px), 0=original")
	flag.IntVar(&sendQ, "sendq", 0, "JPEG quality for image sent to the model (1-100)")
	flag.IntVar(&timeout, "timeout", 0, "detection timeout in seconds")
	flag.BoolVar(&jsonMode, "jsonmode", false, "ask llama.cpp for a JSON object response")
	flag.StringVar(&languages, "lang", "", "tesseract languages, e.g. eng+deu")

	flag.StringVar(&logLevel, "loglevel", "", "log level: debug|info|warn|error")
	flag.StringVar(&logFormat, "logformat", "", "log format: text|json")

	flag.Parse()

	cfg := loadConfig(configPath)

	// Explicit flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			cfg.Output.DefaultFormat = strings.ToLower(format)
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "effect":
			kind, err := effects.ParseKind(effectName)
			if err != nil {
				log.Fatal(err)
			}
			cfg.Effect.Kind = kind
		case "blur":
			cfg.Effect.BlurRadius = blurRadius
		case "cell":
			cfg.Effect.CellSize = cellSize
		case "backend":
			cfg.Detector.Backend = strings.ToLower(backend)
			if !isSet("url") && cfg.Detector.Backend == config.BackendLlamaCpp && cfg.Detector.URL == config.Default().Detector.URL {
				cfg.Detector.URL = "http://localhost:8080"
			}
		case "url":
			cfg.Detector.URL = serverURL
		case "model":
			cfg.Detector.Model = model
		case "sendfmt":
			cfg.Detector.SendFormat = sendFmt
		case "sendsize":
			cfg.Detector.SendSize = sendSize
		case "sendq":
			cfg.Detector.SendQuality = sendQ
		case "timeout":
			cfg.Detector.Timeout = timeout
		case "lang":
			cfg.Detector.Languages = languages
		case "loglevel":
			cfg.Log.Level = logLevel
		case "logformat":
			cfg.Log.Format = logFormat
		}
	})

	// Out-of-range effect parameters are clamped rather than rejected
	cfg.Effect = cfg.Effect.Clamp()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", writeConfig)
		return
	}

	if in == "" {
		log.Fatalf("usage: %s -in input.png|URL [-out out.png] [-rect x,y,w,h]... [-ellipse x,y,w,h]... [-path \"x,y x,y ...\"]... [-effect blur|pixelate] [-detect -backend ollama|llamacpp|tesseract]", filepath.Base(os.Args[0]))
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	ghostsnap.SetLogger(logging.New(level, cfg.Log.Format, os.Stderr))

	session := ghostsnap.NewWithConfig(ghostsnap.Config{
		Analyzer: analyzer.Config{
			DefaultQuality:   cfg.Analyzer.DefaultQuality,
			SupportedFormats: cfg.Analyzer.SupportedFormats,
			MinImageSize:     cfg.Analyzer.MinImageSize,
		},
		Effect: cfg.Effect,
		Output: ghostsnap.OutputConfig{Quality: cfg.Output.Quality, Lossless: cfg.Output.Lossless},
	})

	ctx := context.Background()

	// Load input image (from file or URL)
	if err := session.Open(ctx, in); err != nil {
		log.Fatalf("%s (%v)", ghostsnap.UserMessage(err), err)
	}
	info := session.Info()
	log.Printf("loaded %s: %dx%d %s", in, info.Width, info.Height, info.Format)

	if detect || check {
		if err := autoDetect(ctx, cfg, session, check, jsonMode); err != nil {
			log.Fatal(err)
		}
		if check {
			return
		}
	}

	if len(regions) > 0 {
		n, err := session.AddRegions(regions...)
		if err != nil {
			log.Fatal(err)
		}
		if n < len(regions) {
			log.Printf("skipped %d region(s) smaller than %.0fpx", len(regions)-n, region.MinExtent)
		}
	}

	final := session.Regions()
	if len(final) == 0 {
		log.Printf("no regions; output equals the input")
	}

	if out == "" {
		out = utils.RedactedFilename(in, cfg.Output.DefaultFormat, cfg.Output.Filename)
	}
	if err := utils.EnsureDir(filepath.Dir(out)); err != nil {
		log.Fatal(err)
	}
	if err := session.Save(out); err != nil {
		log.Fatalf("save %s failed: %v", out, err)
	}
	if fi, err := os.Stat(out); err == nil {
		log.Printf("wrote %s (%s, %s, %d region(s))", out, utils.FormatFileSize(fi.Size()), session.Effect(), len(final))
	}

	if overlayPath != "" {
		// the pointer tool outlines every region on top of the redaction
		session.SetTool(gesture.Pointer)
		processor := processing.NewProcessor()
		dbg, err := session.Overlay()
		if err != nil {
			log.Printf("overlay failed: %v", err)
		} else if err := processor.SaveImage(dbg, overlayPath, "", cfg.Output.Quality, cfg.Output.Lossless); err != nil {
			log.Printf("overlay save %s failed: %v", overlayPath, err)
		} else {
			log.Printf("wrote %s", overlayPath)
		}
	}

	if regionsOut != "" {
		if err := writeRegions(regionsOut, final); err != nil {
			log.Printf("write %s failed: %v", regionsOut, err)
		} else {
			log.Printf("wrote %s", regionsOut)
		}
	}
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// autoDetect runs the configured backend over the session image, or only
// checks it is usable when check is set. The backend is closed on return.
func autoDetect(ctx context.Context, cfg *config.Config, session *ghostsnap.Session, check, jsonMode bool) error {
	det, vision, closeFn, err := newDetector(cfg, jsonMode)
	if err != nil {
		return err
	}
	defer closeFn()

	if check {
		return runCheck(ctx, cfg, vision, det, session.Image())
	}

	session.SetDetector(det)
	dctx, cancel := context.WithTimeout(ctx, cfg.DetectorTimeout())
	defer cancel()

	n, err := session.Detect(dctx)
	if err != nil {
		return fmt.Errorf("%s (%w)", ghostsnap.UserMessage(err), err)
	}
	log.Printf("detected %d sensitive area(s) with %s", n, cfg.Detector.Backend)
	return nil
}

// writeRegions saves the regions as indented JSON
func writeRegions(path string, regions region.Collection) error {
	js, err := json.MarshalIndent(regions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode regions: %w", err)
	}
	return os.WriteFile(path, js, 0o644)
}

// loadConfig reads the given file, or the default config path when it
// exists, or falls back to built-in defaults
func loadConfig(path string) *config.Config {
	if path == "" {
		if p := config.GetConfigPath(); utils.FileExists(p) {
			path = p
		}
	}
	if path == "" {
		return config.Default()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

// pinger is implemented by the HTTP vision clients
type pinger interface {
	Ping(ctx context.Context) error
}

// newDetector is replaced in tests
var newDetector = buildDetector

// buildDetector creates the configured backend. vision is nil for the OCR
// backend.
func buildDetector(cfg *config.Config, jsonMode bool) (detection.Detector, *detection.VisionDetector, func(), error) {
	var visionClient client.VisionClient

	switch cfg.Detector.Backend {
	case config.BackendOllama:
		c, err := ollama.NewClient(cfg.Detector.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		c.Schema = json.RawMessage(detection.ResponseSchema)
		visionClient = c
	case config.BackendLlamaCpp:
		c, err := llamacpp.NewClient(cfg.Detector.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		c.JSONMode = jsonMode
		visionClient = c
	case config.BackendTesseract:
		engine, err := ocr.NewEngine(cfg.Detector.Languages)
		if err != nil {
			return nil, nil, nil, err
		}
		return engine, nil, func() { _ = engine.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown backend: %s (use 'ollama', 'llamacpp' or 'tesseract')", cfg.Detector.Backend)
	}

	vd := detection.NewVisionDetector(visionClient, detection.Options{
		Model:       cfg.Detector.Model,
		SendFormat:  cfg.Detector.SendFormat,
		SendSize:    cfg.Detector.SendSize,
		SendQuality: cfg.Detector.SendQuality,
	})
	return vd, vd, func() {}, nil
}

// runCheck verifies the backend is reachable and can read the image
func runCheck(ctx context.Context, cfg *config.Config, vd *detection.VisionDetector, det detection.Detector, img image.Image) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.DetectorTimeout())
	defer cancel()

	if vd == nil {
		engine, ok := det.(*ocr.Engine)
		if !ok {
			return fmt.Errorf("backend %s has no check", cfg.Detector.Backend)
		}
		words, err := engine.Words(ctx, img)
		if err != nil {
			return err
		}
		log.Printf("tesseract read %d word(s), %d look sensitive", len(words), len(ocr.FindPII(words)))
		return nil
	}

	if p, ok := vd.Client().(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	reply, err := vd.TestVision(ctx, img)
	if err != nil {
		return err
	}
	log.Printf("%s sees: %s", vd.Options().Model, strings.TrimSpace(reply))
	return nil
}
