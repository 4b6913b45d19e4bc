package datasource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Replayer plays a capture file back as a stream of frames, optionally
// paced to a frame rate and optionally following the file for appended
// lines, so a recording session in another process streams in live.
type Replayer struct {
	path     string
	follow   bool
	limiter  *rate.Limiter
	debounce time.Duration

	frames chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	errs   chan error
}

// NewReplayer opens a capture file for playback. framesPerSec <= 0 means
// unpaced; follow keeps the replayer tailing the file after the last
// line instead of finishing.
func NewReplayer(path string, framesPerSec float64, follow bool) (*Replayer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Replayer{
		path:     path,
		follow:   follow,
		debounce: 100 * time.Millisecond,
		frames:   make(chan []byte),
		ctx:      ctx,
		cancel:   cancel,
		errs:     make(chan error, 1),
	}
	if framesPerSec > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(framesPerSec), 1)
	}
	go r.loop()
	return r, nil
}

// Frames returns the playback stream. The channel is closed when the
// capture is exhausted (non-follow mode) or the replayer is closed.
func (r *Replayer) Frames() <-chan []byte {
	return r.frames
}

// Err reports a playback failure after Frames closes, if any.
func (r *Replayer) Err() error {
	select {
	case err := <-r.errs:
		return err
	default:
		return nil
	}
}

// Close stops playback.
func (r *Replayer) Close() error {
	r.cancel()
	return nil
}

func (r *Replayer) loop() {
	defer close(r.frames)

	f, err := os.Open(r.path)
	if err != nil {
		r.errs <- err
		return
	}
	defer f.Close()

	var watcher *fsnotify.Watcher
	if r.follow {
		// Watch the parent directory to survive atomic rewrites.
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			r.errs <- err
			return
		}
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(r.path)); err != nil {
			r.errs <- err
			return
		}
	}

	rd := bufio.NewReader(f)
	var partial []byte
	for {
		line, err := rd.ReadBytes('\n')
		if len(line) > 0 && err == nil {
			frame := append(partial, line...)
			partial = nil
			frame = bytes.TrimSpace(frame)
			if len(frame) == 0 {
				continue
			}
			if !r.pace() {
				return
			}
			select {
			case r.frames <- frame:
			case <-r.ctx.Done():
				return
			}
			continue
		}
		if err == io.EOF {
			// A partial line stays buffered until its newline arrives.
			partial = append(partial, line...)
			if !r.follow {
				// A truncated capture may end without a trailing
				// newline; flush the final line instead of dropping it.
				if frame := bytes.TrimSpace(partial); len(frame) > 0 {
					if !r.pace() {
						return
					}
					select {
					case r.frames <- frame:
					case <-r.ctx.Done():
					}
				}
				return
			}
			if !r.waitForWrite(watcher) {
				return
			}
			continue
		}
		if err != nil {
			r.errs <- err
			return
		}
	}
}

// pace blocks for the configured frame rate; false means the replayer
// was closed while waiting.
func (r *Replayer) pace() bool {
	if r.limiter == nil {
		return true
	}
	return r.limiter.Wait(r.ctx) == nil
}

// waitForWrite blocks until the capture file is written again, with a
// short debounce so a burst of appends is read in one pass.
func (r *Replayer) waitForWrite(watcher *fsnotify.Watcher) bool {
	base := filepath.Base(r.path)
	for {
		select {
		case <-r.ctx.Done():
			return false
		case event, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce: let a burst of appends settle before reading.
			time.Sleep(r.debounce)
			return true
		case _, ok := <-watcher.Errors:
			if !ok {
				return false
			}
		}
	}
}
