package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// MaxPhotoBytes is the ceiling for a single photo upload.
	MaxPhotoBytes = 16 << 20
	// DefaultUploadResetDelay keeps Done/Failed visible before returning to Idle.
	DefaultUploadResetDelay = time.Second
	// DefaultUploadTimeout bounds the HTTP round trip.
	DefaultUploadTimeout = 60 * time.Second

	readProgressCeiling = 90
)

// PhotoFile is a file the user picked for upload.
type PhotoFile interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// Uploader posts an encoded photo and returns the reference to share.
type Uploader interface {
	Upload(ctx context.Context, photo string) (string, error)
}

type Stage int

const (
	StageIdle Stage = iota
	StageValidating
	StageReading
	StageUploading
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StageReading:
		return "reading"
	case StageUploading:
		return "uploading"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	}
	return "idle"
}

type UploadJob struct {
	File     PhotoFile
	Stage    Stage
	Progress int
	Err      error
	id       uint64
}

// UploadHooks are invoked on the loop as the job moves through its stages.
type UploadHooks struct {
	Progress func(percent int)
	Done     func(photoURL string)
	Failed   func(err error)
	Idle     func()
}

// UploadPipeline runs at most one photo upload at a time.
type UploadPipeline struct {
	loop       Loop
	clock      Clock
	uploader   Uploader
	maxBytes   int64
	resetDelay time.Duration
	timeout    time.Duration
	hooks      UploadHooks

	job    *UploadJob
	nextID uint64
}

type UploadOptions struct {
	MaxBytes   int64
	ResetDelay time.Duration
	Timeout    time.Duration
}

func NewUploadPipeline(loop Loop, clock Clock, uploader Uploader, opts UploadOptions, hooks UploadHooks) *UploadPipeline {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = MaxPhotoBytes
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = DefaultUploadResetDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultUploadTimeout
	}
	return &UploadPipeline{
		loop:       loop,
		clock:      clock,
		uploader:   uploader,
		maxBytes:   opts.MaxBytes,
		resetDelay: opts.ResetDelay,
		timeout:    opts.Timeout,
		hooks:      hooks,
	}
}

// Job returns a snapshot of the current job; ok is false when idle.
func (p *UploadPipeline) Job() (UploadJob, bool) {
	if p.job == nil {
		return UploadJob{Stage: StageIdle}, false
	}
	return *p.job, true
}

func (p *UploadPipeline) Stage() Stage {
	if p.job == nil {
		return StageIdle
	}
	return p.job.Stage
}

func (p *UploadPipeline) live() bool {
	switch p.Stage() {
	case StageValidating, StageReading, StageUploading:
		return true
	}
	return false
}

// Start validates file and, if acceptable, begins reading it off the loop.
// Validation runs synchronously inside Start; a rejection restores the
// previous job and emits no progress.
func (p *UploadPipeline) Start(file PhotoFile) error {
	if p.live() {
		return invalid("An upload is already in progress")
	}

	prev := p.job
	p.nextID++
	job := &UploadJob{File: file, Stage: StageValidating, id: p.nextID}
	p.job = job
	if err := p.validate(file); err != nil {
		p.job = prev
		return err
	}

	job.Stage = StageReading
	p.report(job, 0)

	id := job.id
	limit := p.maxBytes
	p.loop.Go(func() func() {
		payload, err := encodeDataURL(file, limit, func(percent int) {
			p.loop.Post(func() { p.progress(id, percent) })
		})
		return func() { p.encoded(id, payload, err) }
	})
	return nil
}

func (p *UploadPipeline) validate(file PhotoFile) error {
	if file == nil || !IsPhotoType(file.ContentType()) {
		return invalid("Please select an image file (jpg, png, gif, webp)")
	}
	if file.Size() > p.maxBytes {
		return p.tooLarge()
	}
	return nil
}

func (p *UploadPipeline) tooLarge() error {
	return invalid(fmt.Sprintf("Image size should be less than %dMB", p.maxBytes>>20))
}

func (p *UploadPipeline) current(id uint64, stage Stage) *UploadJob {
	if p.job == nil || p.job.id != id || p.job.Stage != stage {
		return nil
	}
	return p.job
}

func (p *UploadPipeline) progress(id uint64, percent int) {
	job := p.current(id, StageReading)
	if job == nil {
		return
	}
	p.report(job, percent)
}

func (p *UploadPipeline) report(job *UploadJob, percent int) {
	if percent < job.Progress {
		return
	}
	if percent == job.Progress && percent != 0 {
		return
	}
	job.Progress = percent
	if p.hooks.Progress != nil {
		p.hooks.Progress(percent)
	}
}

func (p *UploadPipeline) encoded(id uint64, payload string, err error) {
	job := p.current(id, StageReading)
	if job == nil {
		return
	}
	if errors.Is(err, errPhotoGrew) {
		p.fail(job, p.tooLarge())
		return
	}
	if err != nil {
		p.fail(job, uploadErr("Failed to read file", err))
		return
	}
	p.report(job, readProgressCeiling)
	job.Stage = StageUploading
	p.loop.Go(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		photoURL, err := p.uploader.Upload(ctx, payload)
		return func() { p.uploaded(id, photoURL, err) }
	})
}

func (p *UploadPipeline) uploaded(id uint64, photoURL string, err error) {
	job := p.current(id, StageUploading)
	if job == nil {
		return
	}
	if err == nil && photoURL == "" {
		err = fmt.Errorf("server returned no photo reference")
	}
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "Failed to upload photo"
		}
		p.fail(job, uploadErr(msg, err))
		return
	}
	job.Stage = StageDone
	p.report(job, 100)
	if p.hooks.Done != nil {
		p.hooks.Done(photoURL)
	}
	p.scheduleIdle(id)
}

func (p *UploadPipeline) fail(job *UploadJob, err error) {
	job.Stage = StageFailed
	job.Err = err
	if p.hooks.Failed != nil {
		p.hooks.Failed(err)
	}
	p.scheduleIdle(job.id)
}

func (p *UploadPipeline) scheduleIdle(id uint64) {
	p.clock.AfterFunc(p.resetDelay, func() {
		if p.job == nil || p.job.id != id {
			return
		}
		p.job = nil
		if p.hooks.Idle != nil {
			p.hooks.Idle()
		}
	})
}

// errPhotoGrew means the file held more than the size limit once read,
// even though it was small enough when validated.
var errPhotoGrew = errors.New("photo exceeds size limit")

// encodeDataURL reads at most limit bytes of file into a data URL, reporting
// read progress in the 0..90 range as bytes are consumed.
func encodeDataURL(file PhotoFile, limit int64, progress func(int)) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var sb strings.Builder
	sb.WriteString("data:")
	sb.WriteString(file.ContentType())
	sb.WriteString(";base64,")
	encoder := base64.NewEncoder(base64.StdEncoding, &sb)
	reader := &progressReader{r: io.LimitReader(rc, limit+1), total: file.Size(), report: progress}
	n, err := io.Copy(encoder, reader)
	if err != nil {
		return "", err
	}
	if n > limit {
		return "", errPhotoGrew
	}
	if err := encoder.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   int
	report func(int)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 && pr.total > 0 {
		pr.read += int64(n)
		percent := int(pr.read * readProgressCeiling / pr.total)
		if percent > readProgressCeiling {
			percent = readProgressCeiling
		}
		if percent > pr.last {
			pr.last = percent
			pr.report(percent)
		}
	}
	return n, err
}
