package chat

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

type uploadRecorder struct {
	progress []int
	done     []string
	failed   []error
	idle     int
}

func (r *uploadRecorder) hooks() UploadHooks {
	return UploadHooks{
		Progress: func(p int) { r.progress = append(r.progress, p) },
		Done:     func(u string) { r.done = append(r.done, u) },
		Failed:   func(err error) { r.failed = append(r.failed, err) },
		Idle:     func() { r.idle++ },
	}
}

func newTestPipeline(up Uploader) (*UploadPipeline, *syncLoop, *fakeClock, *uploadRecorder) {
	loop := &syncLoop{}
	clock := newFakeClock(loop)
	rec := &uploadRecorder{}
	return NewUploadPipeline(loop, clock, up, UploadOptions{}, rec.hooks()), loop, clock, rec
}

func TestUploadRejectsOversizeBeforeReading(t *testing.T) {
	up := &fakeUploader{url: "/photos/x"}
	p, loop, _, rec := newTestPipeline(up)
	file := &memPhoto{name: "big.png", contentType: "image/png", size: 20 << 20}

	err := p.Start(file)
	loop.drain()

	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err %v, want validation error", err)
	}
	if p.Stage() != StageIdle {
		t.Fatalf("stage %s, want idle", p.Stage())
	}
	if len(rec.progress) != 0 || file.opened != 0 || up.calls != 0 {
		t.Fatalf("progress=%v opened=%d calls=%d", rec.progress, file.opened, up.calls)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	p, _, _, rec := newTestPipeline(&fakeUploader{})
	err := p.Start(&memPhoto{name: "notes.txt", contentType: "text/plain", data: []byte("hi")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err %v", err)
	}
	if len(rec.progress) != 0 {
		t.Fatalf("progress emitted: %v", rec.progress)
	}
}

func TestUploadSuccess(t *testing.T) {
	up := &fakeUploader{url: "/photos/abc.png"}
	p, loop, clock, rec := newTestPipeline(up)
	data := []byte(strings.Repeat("x", 4096))

	if err := p.Start(&memPhoto{name: "cat.png", contentType: "image/png", data: data}); err != nil {
		t.Fatalf("start: %v", err)
	}
	loop.drain()

	want := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	if up.got != want {
		t.Fatalf("uploaded payload mismatch")
	}
	if up.calls != 1 {
		t.Fatalf("calls %d, want 1", up.calls)
	}
	if len(rec.progress) < 2 || rec.progress[0] != 0 || rec.progress[len(rec.progress)-1] != 100 {
		t.Fatalf("progress %v", rec.progress)
	}
	for i := 1; i < len(rec.progress); i++ {
		if rec.progress[i] <= rec.progress[i-1] {
			t.Fatalf("progress not monotonic: %v", rec.progress)
		}
	}
	if len(rec.done) != 1 || rec.done[0] != "/photos/abc.png" {
		t.Fatalf("done %v", rec.done)
	}
	if p.Stage() != StageDone {
		t.Fatalf("stage %s, want done", p.Stage())
	}

	clock.Advance(time.Second)
	if p.Stage() != StageIdle || rec.idle != 1 {
		t.Fatalf("stage %s idle=%d", p.Stage(), rec.idle)
	}
}

func TestUploadFailureSurfacesServerText(t *testing.T) {
	up := &fakeUploader{err: errors.New("Invalid image data")}
	p, loop, clock, rec := newTestPipeline(up)

	if err := p.Start(&memPhoto{name: "a.png", contentType: "image/png", data: []byte("abc")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	loop.drain()

	if len(rec.failed) != 1 {
		t.Fatalf("failed hooks %d", len(rec.failed))
	}
	if !errors.Is(rec.failed[0], ErrUpload) || rec.failed[0].Error() != "Invalid image data" {
		t.Fatalf("failure %v", rec.failed[0])
	}
	if p.Stage() != StageFailed {
		t.Fatalf("stage %s", p.Stage())
	}

	// a finished job does not block a new one
	if err := p.Start(&memPhoto{name: "b.png", contentType: "image/png", data: []byte("abc")}); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	loop.drain()
	clock.Advance(time.Second)
	if p.Stage() != StageIdle {
		t.Fatalf("stage %s, want idle", p.Stage())
	}
}

func TestUploadRejectsWhileLive(t *testing.T) {
	p, loop, _, _ := newTestPipeline(&fakeUploader{url: "/photos/1"})
	if err := p.Start(&memPhoto{name: "a.png", contentType: "image/png", data: []byte("a")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.Stage() != StageReading {
		t.Fatalf("stage %s, want reading", p.Stage())
	}
	if err := p.Start(&memPhoto{name: "b.png", contentType: "image/png", data: []byte("b")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("second start: %v", err)
	}
	loop.drain()
}

func TestUploadRejectsUnsupportedFormats(t *testing.T) {
	p, _, _, rec := newTestPipeline(&fakeUploader{})
	for _, ct := range []string{"image/bmp", "image/svg+xml", "image/tiff", "image/heic"} {
		err := p.Start(&memPhoto{name: "x", contentType: ct, data: []byte("x")})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err %v", ct, err)
		}
	}
	if p.Stage() != StageIdle || len(rec.progress) != 0 {
		t.Fatalf("stage %s progress %v", p.Stage(), rec.progress)
	}
}

func TestUploadRejectionKeepsFinishedJob(t *testing.T) {
	p, loop, _, _ := newTestPipeline(&fakeUploader{url: "/photos/1.png"})
	if err := p.Start(&memPhoto{name: "a.png", contentType: "image/png", data: []byte("a")}); err != nil {
		t.Fatalf("start: %v", err)
	}
	loop.drain()
	if err := p.Start(&memPhoto{name: "b.txt", contentType: "text/plain", data: []byte("b")}); !errors.Is(err, ErrValidation) {
		t.Fatalf("err %v", err)
	}
	if job, ok := p.Job(); !ok || job.Stage != StageDone || job.File.Name() != "a.png" {
		t.Fatalf("job %+v", job)
	}
}

func TestUploadFailsWhenFileGrowsPastLimit(t *testing.T) {
	up := &fakeUploader{url: "/photos/x.png"}
	loop := &syncLoop{}
	rec := &uploadRecorder{}
	p := NewUploadPipeline(loop, newFakeClock(loop), up, UploadOptions{MaxBytes: 1 << 20}, rec.hooks())
	// Size reports what Stat saw; the bytes behind it have grown since
	file := &memPhoto{name: "grow.png", contentType: "image/png", size: 10, data: make([]byte, 2<<20)}

	if err := p.Start(file); err != nil {
		t.Fatalf("start: %v", err)
	}
	loop.drain()

	if up.calls != 0 {
		t.Fatalf("oversize payload uploaded")
	}
	if len(rec.failed) != 1 || !errors.Is(rec.failed[0], ErrValidation) || rec.failed[0].Error() != "Image size should be less than 1MB" {
		t.Fatalf("failed %v", rec.failed)
	}
	if p.Stage() != StageFailed {
		t.Fatalf("stage %s", p.Stage())
	}
}
