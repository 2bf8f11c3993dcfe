package detection

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/menta2k/ghostsnap/pkg/region"
	"github.com/menta2k/ghostsnap/pkg/types"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 200, 255})
		}
	}
	return img
}

// fakeClient records the last request and returns a canned reply
type fakeClient struct {
	reply  string
	err    error
	model  string
	system string
	prompt string
	image  string
}

func (f *fakeClient) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return f.Query(ctx, model, "", prompt, imgB64)
}

func (f *fakeClient) Query(ctx context.Context, model, system, prompt, imgB64 string) (string, error) {
	f.model, f.system, f.prompt, f.image = model, system, prompt, imgB64
	return f.reply, f.err
}

func TestParseBoxes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"plain array", `[{"x":0.1,"y":0.2,"width":0.3,"height":0.4}]`, 1},
		{"code fence", "```json\n[{\"x\":0.1,\"y\":0.1,\"width\":0.2,\"height\":0.2},{\"x\":0.5,\"y\":0.5,\"width\":0.1,\"height\":0.1}]\n```", 2},
		{"trailing comma and comment", "[\n// faces\n{\"x\":0.1,\"y\":0.1,\"width\":0.2,\"height\":0.2,},\n]", 1},
		{"prose around array", `Here you go: [{"x":0,"y":0,"width":1,"height":1}] hope it helps`, 1},
		{"wrapped in object", `{"regions":[{"x":0.1,"y":0.1,"w":0.2,"h":0.2}]}`, 1},
		{"single object", `{"x":0.1,"y":0.1,"width":0.2,"height":0.2}`, 1},
		{"empty array", `[]`, 0},
		{"empty reply", "   ", 0},
		{"non numeric entries skipped", `[{"x":"0.1","y":0.1,"width":0.2,"height":0.2},{"x":0.3,"y":0.3,"width":0.2,"height":0.2},"junk"]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			boxes, err := ParseBoxes(tt.raw, 0, 0)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if boxes == nil {
				t.Fatal("Expected a non-nil slice")
			}
			if len(boxes) != tt.want {
				t.Errorf("Expected %d boxes, got %d: %+v", tt.want, len(boxes), boxes)
			}
		})
	}
}

func TestParseBoxesMalformed(t *testing.T) {
	for _, raw := range []string{
		"I could not find anything sensitive.",
		`[{"x":0.1,`,
		`{"note":"nothing here"}`,
	} {
		if _, err := ParseBoxes(raw, 0, 0); !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("ParseBoxes(%q): expected ErrMalformedResponse, got %v", raw, err)
		}
	}
}

func TestParseBoxesClamps(t *testing.T) {
	boxes, err := ParseBoxes(`[{"x":-0.2,"y":0.9,"width":0.5,"height":0.5}]`, 0, 0)
	if err != nil || len(boxes) != 1 {
		t.Fatalf("ParseBoxes failed: %v", err)
	}
	b := boxes[0]
	if b.X != 0 || b.Y != 0.9 || b.Width != 0.5 {
		t.Errorf("Unexpected clamped box %+v", b)
	}
	if b.Y+b.Height > 1.0000001 {
		t.Errorf("Box extends past the bottom edge: %+v", b)
	}
}

func TestParseBoxesPixelReply(t *testing.T) {
	boxes, err := ParseBoxes(`[{"x":100,"y":50,"width":200,"height":100}]`, 1000, 500)
	if err != nil || len(boxes) != 1 {
		t.Fatalf("ParseBoxes failed: %v", err)
	}
	want := types.Box{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2}
	if boxes[0] != want {
		t.Errorf("Expected %+v, got %+v", want, boxes[0])
	}
}

func TestParseBoxesKeepsLabel(t *testing.T) {
	boxes, _ := ParseBoxes(`[{"x":0.1,"y":0.1,"width":0.2,"height":0.2,"label":"email"}]`, 0, 0)
	if len(boxes) != 1 || boxes[0].Label != "email" {
		t.Errorf("Expected label to survive, got %+v", boxes)
	}
}

func TestToRegions(t *testing.T) {
	regions := ToRegions([]types.Box{{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2}}, 200, 100)

	if len(regions) != 1 {
		t.Fatalf("Expected one region, got %d", len(regions))
	}
	want := region.NewRectangle(20, 10, 40, 20)
	got := regions[0]
	if got.Kind != want.Kind || got.X != want.X || got.Y != want.Y || got.Width != want.Width || got.Height != want.Height {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}

func TestVisionDetectorDetect(t *testing.T) {
	fc := &fakeClient{reply: `[{"x":0.25,"y":0.5,"width":0.5,"height":0.25}]`}
	d := NewVisionDetector(fc, Options{Model: "test-model", SendSize: 64})

	boxes, err := d.Detect(context.Background(), createTestImage(256, 128))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 1 || boxes[0].X != 0.25 {
		t.Errorf("Unexpected boxes %+v", boxes)
	}
	if fc.model != "test-model" || fc.system != DefaultSystemPrompt || fc.prompt != DefaultPrompt {
		t.Errorf("Unexpected request: model=%q prompt=%q", fc.model, fc.prompt)
	}
	if fc.image == "" {
		t.Error("Image was not sent")
	}
}

func TestVisionDetectorBackendError(t *testing.T) {
	fc := &fakeClient{err: errors.New("connection refused")}
	d := NewVisionDetector(fc, Options{})

	if _, err := d.Detect(context.Background(), createTestImage(10, 10)); err == nil {
		t.Error("Expected backend error to propagate")
	}
}

func TestVisionDetectorDefaults(t *testing.T) {
	opts := NewVisionDetector(&fakeClient{}, Options{}).Options()
	if opts != DefaultOptions() {
		t.Errorf("Expected defaults, got %+v", opts)
	}
}

func TestTestVision(t *testing.T) {
	fc := &fakeClient{reply: "a red square"}
	d := NewVisionDetector(fc, Options{})

	out, err := d.TestVision(context.Background(), createTestImage(20, 20))
	if err != nil || !strings.Contains(out, "red") {
		t.Errorf("TestVision = %q, %v", out, err)
	}
	if fc.prompt != SimpleTestPrompt {
		t.Errorf("Expected the simple prompt, got %q", fc.prompt)
	}
}

func TestSentSize(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{100, 50, 0, 100, 50},
		{100, 50, 200, 100, 50},
		{400, 200, 100, 100, 50},
		{200, 400, 100, 50, 100},
	}
	for _, tt := range tests {
		w, h := sentSize(image.Rect(0, 0, tt.w, tt.h), tt.max)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("sentSize(%dx%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestGuardRejectsSecondCall(t *testing.T) {
	g := NewGuard()
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Run(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	if !g.Busy() {
		t.Error("Guard should report busy while a call is in flight")
	}

	called := false
	err := g.Run(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrDetectionInProgress) {
		t.Errorf("Expected ErrDetectionInProgress, got %v", err)
	}
	if called {
		t.Error("Rejected call must not run")
	}

	close(release)
	wg.Wait()

	if g.Busy() {
		t.Error("Guard should be idle after the call returns")
	}
	if err := g.Run(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("Guard should accept a new call, got %v", err)
	}
}

func TestGuardPropagatesError(t *testing.T) {
	g := NewGuard()
	boom := errors.New("boom")

	if err := g.Run(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
	if g.Busy() {
		t.Error("Guard should release after an error")
	}
}
