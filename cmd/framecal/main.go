package main

import(
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"framecal/pkg/align"
	"framecal/pkg/denoise"
	"framecal/pkg/frame"
	"framecal/pkg/pool"
	"framecal/pkg/track"
)

var(
	fConfigFilename string
	fLightsDir      string
	fDarksDir       string
	fOutputFilename string
	fHDRFilename    string
	fStateFilename  string
	fTracksPrefix   string
	fWorkers        int
)

func init() {
	flag.StringVar(&fConfigFilename, "config", "", "YAML configuration file")
	flag.StringVar(&fLightsDir, "lights", "", "dir (or file) of light frames, .tif")
	flag.StringVar(&fDarksDir, "darks", "", "dir (or file) of dark frames, .tif")
	flag.StringVar(&fOutputFilename, "o", "out.png", "name of output image file")
	flag.StringVar(&fHDRFilename, "hdr", "", "also write the stack average as a Radiance .hdr")
	flag.StringVar(&fStateFilename, "state", "", "save/restore registration state here")
	flag.StringVar(&fTracksPrefix, "tracks", "", "write per-frame tracking overlays with this prefix")
	flag.IntVar(&fWorkers, "workers", 0, "worker pool size (0 = one per CPU)")
	flag.Parse()

	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime)
	log.Printf("Starting\n")
}

func main() {
	cfg, err := loadConfiguration(fConfigFilename)
	if err != nil {
		log.Fatal(err)
	}

	if fWorkers > 0 {
		cfg.Workers = fWorkers
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	p := pool.New(cfg.Workers)

	lightArgs := flag.Args()
	if fLightsDir != "" {
		lightArgs = append([]string{fLightsDir}, lightArgs...)
	}
	lights, err := frame.LoadFilesAndDirs(cfg.Load, lightArgs...)
	if err != nil {
		log.Fatal(err)
	}
	if len(lights) == 0 {
		log.Fatal("no light frames given (use -lights or positional args)")
	}

	darks := []*frame.Frame{}
	if fDarksDir != "" {
		if darks, err = frame.LoadFilesAndDirs(cfg.Load, fDarksDir); err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("Loaded %d lights, %d darks\n", len(lights), len(darks))

	factory := track.NewSADFactory(cfg.Tracker.PatchSize, cfg.Tracker.Distance)
	grid, err := align.New(lights[0], cfg.Align, factory, p)
	if err != nil {
		log.Fatalf("registration setup: %v\n", err)
	}
	log.Printf("Tracking grid: %d points\n", grid.NumTrackers())

	if fStateFilename != "" {
		if _, err := os.Stat(fStateFilename); err == nil {
			if err := grid.LoadStateFile(fStateFilename); err != nil {
				log.Fatalf("state restore: %v\n", err)
			}
			log.Printf("Restored registration state from %s\n", fStateFilename)
		}
	}

	accum := frame.Accumulator{}
	nRejected := 0

	for _, light := range lights {
		if len(darks) > 0 {
			if _, err := denoise.Denoise(light, darks, cfg.Denoise, p); err != nil {
				log.Fatalf("denoise %s: %v\n", light, err)
			}
		}

		det, err := grid.Correct(light, nil)
		if err != nil {
			log.Fatalf("align %s: %v\n", light, err)
		}
		if det == nil {
			log.Printf("Dropping %s from the stack\n", light)
			nRejected++
			continue
		}

		if fTracksPrefix != "" {
			fn := fmt.Sprintf("%s-%s.png", fTracksPrefix, filepath.Base(light.Name))
			if err := align.RenderTracks(light, det, fn); err != nil {
				log.Printf("tracks overlay %s: %v\n", fn, err)
			}
		}

		if err := accum.Add(light); err != nil {
			log.Fatalf("stack %s: %v\n", light, err)
		}
	}

	if accum.NumImages() == 0 {
		log.Fatalf("every frame was rejected (%d total)\n", nRejected)
	}
	log.Printf("Stacked %d frames (%d rejected)\n", accum.NumImages(), nRejected)

	if err := frame.WritePNG(frame.Gray16Image(accum.Raw16()), fOutputFilename); err != nil {
		log.Fatal(err)
	}
	log.Printf("Output file written '%s'\n", fOutputFilename)

	if fHDRFilename != "" {
		if err := frame.WriteHDR(frame.NewAverageImage(&accum), fHDRFilename); err != nil {
			log.Fatal(err)
		}
		log.Printf("HDR output file written '%s'\n", fHDRFilename)
	}

	if fStateFilename != "" {
		if err := grid.SaveStateFile(fStateFilename); err != nil {
			log.Fatal(err)
		}
		log.Printf("Registration state saved to '%s'\n", fStateFilename)
	}
}
